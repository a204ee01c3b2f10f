package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthguard/ml"
)

func writeArtifacts(t *testing.T, dir string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, "encoders.json"))
	require.NoError(t, err)
	require.NoError(t, ml.EncodeEncoders(f, map[string]*ml.LabelEncoder{
		"gender": ml.NewLabelEncoder([]string{"female", "male"}),
	}))
	require.NoError(t, f.Close())

	for i, target := range Targets {
		model := &ml.LogisticRegression{Linear: ml.Linear{Coef: []float64{float64(i + 1)}}}
		require.NoError(t, ml.SaveModel(filepath.Join(dir, ModelName(target)+".json"), model))
	}
}

func TestLoaderLoadsBundle(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)

	b, err := NewLoader(&FileSource{Dir: dir}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Models, 3)
	assert.Contains(t, b.Encoders, "gender")
	for _, target := range Targets {
		assert.NotNil(t, b.Models[target], target)
	}
}

func TestLoaderNamesFailingArtifactClass(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader(&FileSource{Dir: dir}).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArtifact))
	assert.True(t, strings.HasPrefix(err.Error(), "could not load encoders: "), err.Error())

	writeArtifacts(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_heart.json"), []byte(`{"type":"mystery"}`), 0o644))
	_, err = NewLoader(&FileSource{Dir: dir}).Load(context.Background())
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "models", le.Class)
	assert.Equal(t, "model_heart", le.Name)
	assert.Contains(t, err.Error(), "could not load models: ")
}

func TestFileSourceDefaultsToExecutableDir(t *testing.T) {
	src, err := NewFileSource("")
	require.NoError(t, err)
	exeDir, err := ExecutableDir()
	require.NoError(t, err)
	assert.Equal(t, exeDir, src.Dir)
	assert.Equal(t, filepath.Join(exeDir, "encoders.json"), src.Path(Encoders))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"encoders", "model_diabetes", "model_heart", "model_cancer"}, Names())
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, *in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3SourceReadsPrefixedKeys(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir)
	objects := map[string][]byte{}
	for _, name := range Names() {
		data, err := os.ReadFile(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
		objects["models/v1/"+name+".json"] = data
	}
	client := &fakeS3{objects: objects}

	b, err := NewLoader(&S3Source{Client: client, Bucket: "artifacts", Prefix: "models/v1"}).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, b.Models, 3)
	assert.Equal(t, "models/v1/encoders.json", client.keys[0])
}

func TestS3SourceMissingObject(t *testing.T) {
	src := &S3Source{Client: &fakeS3{}, Bucket: "artifacts"}
	_, err := src.Open(context.Background(), Encoders)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://artifacts/encoders.json")
}
