package docstore

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "strconv"

    "github.com/aws/aws-sdk-go-v2/aws"
    awscfg "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
    "github.com/aws/aws-sdk-go-v2/service/s3"
    "github.com/rs/zerolog/log"
)

// S3Store keeps encrypted documents in an S3 bucket under documents/<docID>.
type S3Store struct {
    client   *s3.Client
    uploader *manager.Uploader
    bucket   string
    password string
}

// S3Options configures the S3-backed store. AccessKey and SecretKey override
// the default credential chain when both are set; kiosks usually run outside
// AWS and carry static keys in the environment.
type S3Options struct {
    Bucket    string
    Region    string
    AccessKey string
    SecretKey string
    Password  string
}

// NewS3Store creates a document store backed by S3.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
    loadOpts := []func(*awscfg.LoadOptions) error{}
    if opts.Region != "" {
        loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
    }
    if opts.AccessKey != "" && opts.SecretKey != "" {
        loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
            credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
    }
    cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
    if err != nil {
        return nil, fmt.Errorf("failed to load AWS config: %w", err)
    }
    cli := s3.NewFromConfig(cfg)
    return &S3Store{
        client:   cli,
        uploader: manager.NewUploader(cli),
        bucket:   opts.Bucket,
        password: opts.Password,
    }, nil
}

func (s *S3Store) key(docID string) string { return "documents/" + docID }

func (s *S3Store) Put(ctx context.Context, docID string, data []byte, meta Metadata) error {
    blob, err := encrypt(data, s.password)
    if err != nil {
        return fmt.Errorf("failed to encrypt document: %w", err)
    }

    s3Meta := map[string]string{
        "name":         meta.OriginalName,
        "content-type": meta.ContentType,
        "pages":        strconv.Itoa(meta.Pages),
        "size":         strconv.FormatInt(meta.Size, 10),
        "encrypted":    "true",
    }
    _, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
        Bucket:   aws.String(s.bucket),
        Key:      aws.String(s.key(docID)),
        Body:     bytes.NewReader(blob),
        Metadata: s3Meta,
    })
    if err != nil {
        return fmt.Errorf("failed to upload to S3: %w", err)
    }
    log.Info().Str("doc_id", docID).Int("size", len(data)).Msg("stored encrypted document in S3")
    return nil
}

func (s *S3Store) Get(ctx context.Context, docID string) ([]byte, Metadata, error) {
    out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
        Bucket: aws.String(s.bucket),
        Key:    aws.String(s.key(docID)),
    })
    if err != nil {
        return nil, Metadata{}, fmt.Errorf("failed to download from S3: %w", err)
    }
    defer out.Body.Close()

    blob, err := io.ReadAll(out.Body)
    if err != nil {
        return nil, Metadata{}, fmt.Errorf("failed to read S3 object: %w", err)
    }
    data, err := decrypt(blob, s.password)
    if err != nil {
        return nil, Metadata{}, err
    }

    meta := Metadata{Size: int64(len(data))}
    if out.Metadata != nil {
        meta.OriginalName = out.Metadata["name"]
        meta.ContentType = out.Metadata["content-type"]
        if p, err := strconv.Atoi(out.Metadata["pages"]); err == nil { meta.Pages = p }
    }
    return data, meta, nil
}

func (s *S3Store) Delete(ctx context.Context, docID string) error {
    _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
        Bucket: aws.String(s.bucket),
        Key:    aws.String(s.key(docID)),
    })
    return err
}

func (s *S3Store) Ref(docID string) string {
    return "s3://" + s.bucket + "/" + s.key(docID)
}

// Bucket exposes the bucket name for health checks.
func (s *S3Store) Bucket() string { return s.bucket }
