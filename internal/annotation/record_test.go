package annotation

import (
	"testing"

	"image-annotator/internal/model"
)

func TestRecordRoundTrip(t *testing.T) {
	payload, err := EncodeRecord(model.Metadata{Title: "T", Description: "D"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(payload) != `{"title":"T","description":"D"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
	record, err := DecodeRecord(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Title != "T" || record.Description != "D" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestDecodeRecordRejectsCorruptPayloads(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`["title", "description"]`,
		`{"title": "only"}`,
		`{"title": 1, "description": "d"}`,
	} {
		if _, err := DecodeRecord([]byte(payload)); err == nil {
			t.Errorf("DecodeRecord(%s) expected error", payload)
		}
	}
}
