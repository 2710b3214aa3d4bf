package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultPartSize is the S3 minimum for every part but the last.
const DefaultPartSize int64 = 5 << 20

// UploadResumable streams body to objectKey as a multipart upload, calling
// onProgress after each part with the bytes sent so far. A failed upload is
// aborted so no parts linger in the bucket.
func (s *S3Client) UploadResumable(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, onProgress func(sent, total int64)) (string, error) {
	partSize := s.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	created, err := s.Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3: create multipart %s: %w", objectKey, err)
	}
	uploadID := created.UploadId

	parts, err := s.uploadParts(ctx, objectKey, uploadID, body, size, partSize, onProgress)
	if err != nil {
		s.abort(objectKey, uploadID)
		return "", err
	}

	_, err = s.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.Bucket),
		Key:             aws.String(objectKey),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		s.abort(objectKey, uploadID)
		return "", fmt.Errorf("s3: complete multipart %s: %w", objectKey, err)
	}
	return s.URLFor(objectKey), nil
}

func (s *S3Client) uploadParts(ctx context.Context, objectKey string, uploadID *string, body io.Reader, size, partSize int64, onProgress func(sent, total int64)) ([]types.CompletedPart, error) {
	var (
		parts []types.CompletedPart
		sent  int64
		buf   = make([]byte, partSize)
	)
	for num := int32(1); ; num++ {
		n, rerr := io.ReadFull(body, buf)
		if rerr != nil && !errors.Is(rerr, io.ErrUnexpectedEOF) && !errors.Is(rerr, io.EOF) {
			return nil, fmt.Errorf("s3: read part %d: %w", num, rerr)
		}
		// an empty object still needs one (empty) part
		if n == 0 && len(parts) > 0 {
			break
		}

		out, err := s.Client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.Bucket),
			Key:        aws.String(objectKey),
			UploadId:   uploadID,
			PartNumber: aws.Int32(num),
			Body:       bytes.NewReader(buf[:n]),
		})
		if err != nil {
			return nil, fmt.Errorf("s3: upload part %d of %s: %w", num, objectKey, err)
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(num)})

		sent += int64(n)
		if onProgress != nil {
			onProgress(sent, max(size, sent))
		}
		if rerr != nil {
			break
		}
	}
	return parts, nil
}

func (s *S3Client) abort(objectKey string, uploadID *string) {
	// the request context may already be cancelled
	_, err := s.Client.AbortMultipartUpload(context.Background(), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.Bucket),
		Key:      aws.String(objectKey),
		UploadId: uploadID,
	})
	if err != nil {
		log.Printf("[S3] abort multipart %s: %v", objectKey, err)
	}
}

// DeleteObject deletes an object from the bucket (used for cleanup).
func (s *S3Client) DeleteObject(ctx context.Context, objectKey string) error {
	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3: delete object %s: %w", objectKey, err)
	}
	return nil
}
