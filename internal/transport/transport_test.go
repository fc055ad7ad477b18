package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	glaciertypes "github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ncw/swift/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/mime"
)

func newFile(t *testing.T, name, content string) *file.File {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := file.New(path, mime.Default())
	require.NoError(t, err)
	return f
}

type fakeS3 struct {
	mu            sync.Mutex
	bucketMissing bool
	created       bool
	objects       map[string]string
	types         map[string]string
	deleted       []string
	putErr        error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketMissing && !f.created {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.objects[aws.ToString(in.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = string(data)
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestKeyFromReference(t *testing.T) {
	tests := []struct {
		ref, bucket, want string
	}{
		{"https://media.s3.us-east-1.amazonaws.com/uploads/a.jpg", "media", "uploads/a.jpg"},
		{"http://localhost:9000/media/uploads/a.jpg", "media", "uploads/a.jpg"},
		{"https://cdn.example.com/uploads/a.jpg", "media", "uploads/a.jpg"},
		{"uploads/a.jpg", "media", "uploads/a.jpg"},
		{"/a.jpg", "media", "a.jpg"},
		{"a.jpg", "", "a.jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFromReference(tt.ref, tt.bucket), tt.ref)
	}
}

func TestS3TransportAndDelete(t *testing.T) {
	fake := newFakeS3()
	s := newS3(fake, S3Config{Bucket: "media", Region: "eu-west-1"})

	f := newFile(t, "notes.txt", "hello")
	ref, err := s.Transport(context.Background(), f, Destination{Folder: "/uploads/"})
	require.NoError(t, err)

	assert.Equal(t, "https://media.s3.eu-west-1.amazonaws.com/uploads/notes.txt", ref)
	assert.Equal(t, "hello", fake.objects["uploads/notes.txt"])
	assert.Equal(t, "text/plain", fake.types["uploads/notes.txt"])

	require.NoError(t, s.Delete(context.Background(), ref))
	assert.Empty(t, fake.objects)

	require.NoError(t, s.Delete(context.Background(), "uploads/other.txt"))
	assert.Equal(t, []string{"uploads/notes.txt", "uploads/other.txt"}, fake.deleted)
}

func TestS3AvoidsCollisions(t *testing.T) {
	fake := newFakeS3()
	s := newS3(fake, S3Config{Bucket: "media", Endpoint: "http://localhost:9000/"})

	f := newFile(t, "a.txt", "x")
	for _, want := range []string{"a.txt", "a-1.txt", "a-2.txt"} {
		ref, err := s.Transport(context.Background(), f, Destination{})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000/media/"+want, ref)
	}

	ref, err := s.Transport(context.Background(), f, Destination{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media/a.txt", ref)
	assert.Len(t, fake.objects, 3)
}

func TestS3CreatesMissingBucketOnce(t *testing.T) {
	fake := newFakeS3()
	fake.bucketMissing = true
	s := newS3(fake, S3Config{Bucket: "media", Region: "us-east-1"})

	f := newFile(t, "a.txt", "x")
	_, err := s.Transport(context.Background(), f, Destination{})
	require.NoError(t, err)
	assert.True(t, fake.created)
	assert.True(t, s.ensured)
}

func TestS3PutFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	s := newS3(fake, S3Config{Bucket: "media"})

	_, err := s.Transport(context.Background(), newFile(t, "a.txt", "x"), Destination{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

type fakeGlacier struct {
	uploaded  []string
	deleted   []string
	deleteErr error
}

func (g *fakeGlacier) UploadArchive(ctx context.Context, in *glacier.UploadArchiveInput, _ ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error) {
	g.uploaded = append(g.uploaded, aws.ToString(in.ArchiveDescription))
	return &glacier.UploadArchiveOutput{ArchiveId: aws.String("archive-1")}, nil
}

func (g *fakeGlacier) DeleteArchive(ctx context.Context, in *glacier.DeleteArchiveInput, _ ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error) {
	if g.deleteErr != nil {
		return nil, g.deleteErr
	}
	g.deleted = append(g.deleted, aws.ToString(in.ArchiveId))
	return &glacier.DeleteArchiveOutput{}, nil
}

func TestGlacier(t *testing.T) {
	fake := &fakeGlacier{}
	g := &Glacier{client: fake, vault: "cold"}

	ref, err := g.Transport(context.Background(), newFile(t, "a.txt", "x"), Destination{Folder: "backups"})
	require.NoError(t, err)
	assert.Equal(t, "archive-1", ref)
	assert.Equal(t, []string{"backups/a.txt"}, fake.uploaded)

	require.NoError(t, g.Delete(context.Background(), "/-/vaults/cold/archives/archive-2"))
	require.NoError(t, g.Delete(context.Background(), ref))
	assert.Equal(t, []string{"archive-2", "archive-1"}, fake.deleted)
}

func TestGlacierDeleteMissingArchive(t *testing.T) {
	fake := &fakeGlacier{deleteErr: &glaciertypes.ResourceNotFoundException{}}
	g := &Glacier{client: fake, vault: "cold"}
	require.NoError(t, g.Delete(context.Background(), "archive-9"))

	fake.deleteErr = &glaciertypes.ServiceUnavailableException{}
	assert.Error(t, g.Delete(context.Background(), "archive-9"))
}

type fakeSwift struct {
	objects map[string]string
}

func (s *fakeSwift) Object(ctx context.Context, container, name string) (swift.Object, swift.Headers, error) {
	if _, ok := s.objects[name]; ok {
		return swift.Object{Name: name}, nil, nil
	}
	return swift.Object{}, nil, swift.ObjectNotFound
}

func (s *fakeSwift) ObjectPut(ctx context.Context, container, name string, contents io.Reader, checkHash bool, hash, contentType string, h swift.Headers) (swift.Headers, error) {
	data, err := io.ReadAll(contents)
	if err != nil {
		return nil, err
	}
	s.objects[name] = string(data)
	return nil, nil
}

func (s *fakeSwift) ObjectDelete(ctx context.Context, container, name string) error {
	if _, ok := s.objects[name]; !ok {
		return swift.ObjectNotFound
	}
	delete(s.objects, name)
	return nil
}

func TestSwift(t *testing.T) {
	fake := &fakeSwift{objects: map[string]string{"img/a.txt": "old"}}
	s := &Swift{client: fake, container: "files", publicURL: "https://cdn.example.com"}

	ref, err := s.Transport(context.Background(), newFile(t, "a.txt", "new"), Destination{Folder: "img"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img/a-1.txt", ref)
	assert.Equal(t, "new", fake.objects["img/a-1.txt"])

	require.NoError(t, s.Delete(context.Background(), ref))
	require.NoError(t, s.Delete(context.Background(), ref))
	assert.NotContains(t, fake.objects, "img/a-1.txt")
}

func TestSwiftDeleteStorageURL(t *testing.T) {
	fake := &fakeSwift{objects: map[string]string{"f/a.png": "x", "imgs/b.png": "y"}}
	// No public URL and no authenticated storage URL, as in a fresh process.
	s := &Swift{client: fake, container: "imgs", baseURL: func() string { return "/imgs" }}

	require.NoError(t, s.Delete(context.Background(), "https://storage.example/v1/AUTH_a/imgs/f/a.png"))
	assert.NotContains(t, fake.objects, "f/a.png")

	require.NoError(t, s.Delete(context.Background(), "https://storage.example/v1/AUTH_a/imgs/imgs/b.png"))
	assert.NotContains(t, fake.objects, "imgs/b.png")
	assert.Empty(t, fake.objects)
}

func TestLocal(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root, "https://files.example.com/")
	require.NoError(t, err)

	f := newFile(t, "a.txt", "x")
	ref, err := l.Transport(context.Background(), f, Destination{Folder: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/docs/a.txt", ref)
	assert.FileExists(t, filepath.Join(root, "docs", "a.txt"))
	assert.FileExists(t, f.Path())

	ref2, err := l.Transport(context.Background(), f, Destination{Folder: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/docs/a-1.txt", ref2)

	require.NoError(t, l.Delete(context.Background(), ref))
	assert.NoFileExists(t, filepath.Join(root, "docs", "a.txt"))
	require.NoError(t, l.Delete(context.Background(), ref))

	require.NoError(t, l.Delete(context.Background(), "docs/a-1.txt"))
	assert.NoFileExists(t, filepath.Join(root, "docs", "a-1.txt"))

	err = l.Delete(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	assert.Equal(t, []Kind{KindGlacier, KindLocal, KindS3, KindSwift}, reg.Kinds())

	_, err := reg.Build(ctx, Spec{Class: "ftp"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = reg.Build(ctx, Spec{Class: KindS3, Bucket: "media"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "accessKey, secretKey")

	_, err = reg.Build(ctx, Spec{Class: KindGlacier, AccessKey: "a", SecretKey: "b"})
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = reg.Build(ctx, Spec{Class: KindSwift, Username: "u"})
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = reg.Build(ctx, Spec{Class: KindLocal})
	assert.ErrorIs(t, err, ErrMissingCredential)

	tr, err := reg.Build(ctx, Spec{Class: KindS3, Bucket: "media", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.IsType(t, &S3{}, tr)

	tr, err = reg.Build(ctx, Spec{Class: KindSwift, Username: "u", APIKey: "k", AuthURL: "https://auth.example.com/v2.0", Container: "c"})
	require.NoError(t, err)
	assert.IsType(t, &Swift{}, tr)
}

func TestSpecKeepLocal(t *testing.T) {
	assert.False(t, Spec{}.KeepLocal())

	keep := false
	assert.True(t, Spec{RemoveLocal: &keep}.KeepLocal())
}
