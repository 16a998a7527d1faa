package mirror

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength != nil && *in.ContentLength != int64(len(data)) {
		return nil, errors.New("content length mismatch")
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store_PutAndExists(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}}
	s := newS3Store(fake, "osm-mirror", "/replication/minute/")

	ok, err := s.Exists(t.Context(), "000/000/001.osc.gz")
	if err != nil || ok {
		t.Fatalf("Exists before Put = %v, %v; want false, nil", ok, err)
	}

	// Non-seekable body with unknown size is buffered.
	body := io.MultiReader(strings.NewReader("diff"), strings.NewReader("-1"))
	if err := s.Put(t.Context(), "000/000/001.osc.gz", body, -1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	want := "osm-mirror/replication/minute/000/000/001.osc.gz"
	if got := fake.objects[want]; got != "diff-1" {
		t.Errorf("object %s = %q, want %q (objects: %v)", want, got, "diff-1", fake.objects)
	}

	ok, err = s.Exists(t.Context(), "000/000/001.osc.gz")
	if err != nil || !ok {
		t.Fatalf("Exists after Put = %v, %v; want true, nil", ok, err)
	}
}

func TestS3Store_Errors(t *testing.T) {
	fake := &fakeS3{
		objects: map[string]string{},
		putErr:  errors.New("operation error S3: PutObject, https response error StatusCode: 403, AccessDenied"),
		headErr: errors.New("operation error S3: HeadObject, SlowDown: please reduce your request rate"),
	}
	s := newS3Store(fake, "bucket", "")

	err := s.Put(t.Context(), "k", strings.NewReader("x"), 1)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Put error = %v, want ErrAccessDenied", err)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Key != "s3://bucket/k" {
		t.Errorf("Put error = %v, want StorageError for s3://bucket/k", err)
	}

	_, err = s.Exists(t.Context(), "k")
	if !errors.Is(err, ErrThrottled) {
		t.Errorf("Exists error = %v, want ErrThrottled", err)
	}
}

func TestS3Config_Validate(t *testing.T) {
	if err := (&S3Config{}).Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	if err := (&S3Config{Bucket: "b"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(t.Context(), S3Config{}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/prefix", "bucket", "prefix"},
		{"bucket/a/b/", "bucket", "a/b"},
		{"s3://bucket/minute", "bucket", "minute"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, prefix := ParseS3Path(tt.in)
			if bucket != tt.bucket || prefix != tt.prefix {
				t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.in, bucket, prefix, tt.bucket, tt.prefix)
			}
		})
	}
}
