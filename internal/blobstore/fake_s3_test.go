package blobstore

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var fakeModTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeObject struct {
	data        []byte
	contentType string
}

// fakeS3 is a path-style S3-compatible server covering the calls the S3
// and MinIO stores make. Listings are paged pageSize keys at a time.
type fakeS3 struct {
	mu           sync.Mutex
	buckets      map[string]map[string]fakeObject
	pageSize     int
	listRequests int
	denyObjects  bool
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{buckets: make(map[string]map[string]fakeObject), pageSize: 2}
	srv := httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) hasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.buckets[name]
	return ok
}

func (f *fakeS3) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listRequests
}

func (f *fakeS3) setDenyObjects(deny bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyObjects = deny
}

func (f *fakeS3) serveHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "" {
		f.serveBucket(w, r, bucket)
		return
	}
	if f.denyObjects {
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied")
		return
	}
	objects, ok := f.buckets[bucket]
	if !ok {
		writeS3Error(w, r, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := readS3Body(r)
		if err != nil {
			writeS3Error(w, r, http.StatusBadRequest, "IncompleteBody")
			return
		}
		objects[key] = fakeObject{data: data, contentType: r.Header.Get("Content-Type")}
		w.Header().Set("ETag", etagOf(data))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		obj, ok := objects[key]
		if !ok {
			writeS3Error(w, r, http.StatusNotFound, "NoSuchKey")
			return
		}
		h := w.Header()
		h.Set("Content-Type", obj.contentType)
		h.Set("Content-Length", strconv.Itoa(len(obj.data)))
		h.Set("ETag", etagOf(obj.data))
		h.Set("Last-Modified", fakeModTime.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	case http.MethodDelete:
		delete(objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) serveBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	objects, exists := f.buckets[bucket]
	switch {
	case r.Method == http.MethodPut:
		if !exists {
			f.buckets[bucket] = make(map[string]fakeObject)
		}
		w.WriteHeader(http.StatusOK)
	case !exists:
		writeS3Error(w, r, http.StatusNotFound, "NoSuchBucket")
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		f.listRequests++
		f.writeListing(w, bucket, objects, r)
	default:
		writeS3Error(w, r, http.StatusNotImplemented, "NotImplemented")
	}
}

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []listedObject `xml:"Contents"`
}

type listedObject struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int    `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

func (f *fakeS3) writeListing(w http.ResponseWriter, bucket string, objects map[string]fakeObject, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")
	after := q.Get("continuation-token")
	if after == "" {
		after = q.Get("start-after")
	}

	keys := make([]string, 0, len(objects))
	for key := range objects {
		if strings.HasPrefix(key, prefix) && key > after {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := listBucketResult{
		Name:              bucket,
		Prefix:            prefix,
		MaxKeys:           f.pageSize,
		ContinuationToken: q.Get("continuation-token"),
	}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		result.IsTruncated = true
		result.NextContinuationToken = keys[len(keys)-1]
	}
	for _, key := range keys {
		obj := objects[key]
		result.Contents = append(result.Contents, listedObject{
			Key:          key,
			LastModified: fakeModTime.Format("2006-01-02T15:04:05.000Z"),
			ETag:         etagOf(obj.data),
			Size:         len(obj.data),
			StorageClass: "STANDARD",
		})
	}
	result.KeyCount = len(result.Contents)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(result)
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>fake</RequestId></Error>`,
		code, code, r.URL.Path)
}

// readS3Body returns the object payload, unwrapping aws-chunked uploads.
func readS3Body(r *http.Request) ([]byte, error) {
	chunked := strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") ||
		strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-")
	if !chunked {
		return io.ReadAll(r.Body)
	}

	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk header %q: %w", line, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, size); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
