package export

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObjects struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	pages   [][]string
	listed  []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listed = append(f.listed, aws.ToString(in.Prefix))
	i := 0
	if in.ContinuationToken != nil {
		i = len(aws.ToString(in.ContinuationToken))
	}
	out := &s3.ListObjectsV2Output{}
	if i >= len(f.pages) {
		return out, nil
	}
	for _, k := range f.pages[i] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if i+1 < len(f.pages) {
		// The token encodes the next page index as its length.
		token := make([]byte, i+1)
		for j := range token {
			token[j] = 'x'
		}
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(token))
	}
	return out, nil
}

func TestS3Storage_ImplementsStorage(t *testing.T) {
	var _ Storage = (*S3Storage)(nil)
	var _ objectAPI = (*s3.Client)(nil)
}

func TestS3Storage_Key(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "passes/x.json", "passes/x.json"},
		{"sigalign", "passes/x.json", "sigalign/passes/x.json"},
		{"sigalign/", "passes/x.json", "sigalign/passes/x.json"},
		{"/exports/sigalign/", "passes/x.json", "exports/sigalign/passes/x.json"},
	}

	for _, tt := range tests {
		s := newS3Storage(newFakeObjects(), "results", tt.prefix)
		if got := s.key(tt.path); got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestNewS3(t *testing.T) {
	if _, err := NewS3(S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}

	s, err := NewS3(S3Config{Bucket: "results", Region: "us-east-1", Endpoint: "http://localhost:9000", Prefix: "sigalign/"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.prefix != "sigalign" {
		t.Errorf("expected trimmed prefix, got %q", s.prefix)
	}
}

func TestS3Storage_WriteOnce(t *testing.T) {
	api := newFakeObjects()
	s := newS3Storage(api, "results", "sigalign")
	ctx := context.Background()

	if err := s.Write(ctx, "passes/2022/05/10/a.json", []byte(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	put := api.puts[0]
	if aws.ToString(put.Key) != "sigalign/passes/2022/05/10/a.json" {
		t.Errorf("key = %q", aws.ToString(put.Key))
	}
	if aws.ToString(put.IfNoneMatch) != "*" {
		t.Error("expected conditional put")
	}
	if aws.ToString(put.ContentType) != "application/json" {
		t.Errorf("content type = %q", aws.ToString(put.ContentType))
	}

	err := s.Write(ctx, "passes/2022/05/10/a.json", []byte(`{"again":true}`))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second write: got %v, want ErrExists", err)
	}
	if string(api.objects["sigalign/passes/2022/05/10/a.json"]) != `{}` {
		t.Error("object was overwritten")
	}
}

func TestS3Storage_Exists(t *testing.T) {
	api := newFakeObjects()
	api.objects["sigalign/passes/a.json"] = []byte(`{}`)
	s := newS3Storage(api, "results", "sigalign")

	ok, err := s.Exists(context.Background(), "passes/a.json")
	if err != nil || !ok {
		t.Errorf("Exists(a) = %v, %v", ok, err)
	}
	ok, err = s.Exists(context.Background(), "passes/b.json")
	if err != nil || ok {
		t.Errorf("Exists(b) = %v, %v", ok, err)
	}
}

func TestS3Storage_ListPages(t *testing.T) {
	api := newFakeObjects()
	api.pages = [][]string{
		{"sigalign/passes/2022/05/10/b.json", "sigalign/passes/2022/05/10/"},
		{"sigalign/passes/2022/05/10/a.json", "sigalign/passes/2022/05/10/a.json.tmp"},
	}
	s := newS3Storage(api, "results", "sigalign")

	got, err := s.List(context.Background(), "passes/2022/05/10")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"passes/2022/05/10/a.json", "passes/2022/05/10/b.json"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
	if len(api.listed) != 2 || api.listed[0] != "sigalign/passes/2022/05/10" {
		t.Errorf("listed prefixes = %v", api.listed)
	}
}
