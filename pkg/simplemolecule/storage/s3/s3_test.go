package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

const testPDB = "HEADER    T\nATOM      1  N   ALA A   1\nEND"

// fakeS3 answers path-style GetObject and PutObject for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]string
	puts    []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + f.bucket + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, "unknown bucket", http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+key+`</Key></Error>`)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Last-Modified", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		io.WriteString(w, body)
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[key] = string(data)
		f.puts = append(f.puts, key)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) put(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeS3) snapshot() ([]string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objects := make(map[string]string, len(f.objects))
	for k, v := range f.objects {
		objects[k] = v
	}
	return append([]string(nil), f.puts...), objects
}

func setupS3Test(t *testing.T, prefix string) (*Source, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "molecules", objects: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	src, err := New(Config{
		Bucket:          "molecules",
		Prefix:          prefix,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        server.URL,
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return src, fake
}

func TestS3Source_Configuration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("PrefixIsTrimmed", func(t *testing.T) {
		src, err := New(Config{Bucket: "b", Prefix: "/comfy/input/", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "comfy/input", src.prefix)
		assert.Equal(t, "s3", src.Name())
	})
}

func TestS3Source_ReadWrite(t *testing.T) {
	src, fake := setupS3Test(t, "input")
	ctx := context.Background()

	fake.put("input/molecules/protein.pdb", testPDB)

	obj, err := src.Read(ctx, "molecules", "protein.pdb", "wf_node_1")
	require.NoError(t, err)
	assert.Equal(t, testPDB, obj.Content)
	assert.Equal(t, "s3://molecules/input/molecules/protein.pdb", obj.Path)
	assert.Equal(t, 2025, obj.ModTime.Year())

	path, err := src.Write(ctx, "molecules", "ligand.pdb", "wf_node_9", testPDB)
	require.NoError(t, err)
	assert.Equal(t, "s3://molecules/input/molecules/ligand_node9.pdb", path)
	puts, objects := fake.snapshot()
	assert.Equal(t, []string{"input/molecules/ligand_node9.pdb"}, puts)
	assert.Equal(t, testPDB, objects["input/molecules/ligand_node9.pdb"])

	obj, err = src.Read(ctx, "molecules", "ligand.pdb", "other_node_9")
	require.NoError(t, err)
	assert.Equal(t, testPDB, obj.Content)
}

func TestS3Source_NotFound(t *testing.T) {
	src, _ := setupS3Test(t, "")

	_, err := src.Read(context.Background(), "molecules", "missing.pdb", "wf_node_1")
	assert.ErrorIs(t, err, simplemolecule.ErrSourceNotFound)

	var fbErr *simplemolecule.FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, "s3", fbErr.Source)
}

func TestS3Source_RejectsTraversal(t *testing.T) {
	src, fake := setupS3Test(t, "")

	_, err := src.Write(context.Background(), "../other", "a.pdb", "wf_node_1", testPDB)
	assert.ErrorIs(t, err, simplemolecule.ErrValidation)
	puts, _ := fake.snapshot()
	assert.Empty(t, puts)
}
