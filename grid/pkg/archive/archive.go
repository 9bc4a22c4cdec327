// Package archive uploads final grid snapshots to S3-compatible object storage before
// a purge.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

// FormatVersion identifies the snapshot document layout.
const FormatVersion = 1

// PutObjectAPI is the subset of *s3.Client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Logger *slog.Logger
	Client PutObjectAPI
	Bucket string
	Prefix string
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	cfg.Prefix = normalizeKey(cfg.Prefix)
	return nil
}

// S3Config selects the object store. Endpoint is optional and enables path-style
// addressing for S3-compatible stores such as MinIO or R2.
type S3Config struct {
	Region   string
	Endpoint string
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Archiver struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Archiver{log: cfg.Logger, cfg: cfg}, nil
}

// Document is the archived form of a snapshot. Accumulator values are decimal strings.
type Document struct {
	Version    int              `json:"version"`
	ArchivedAt time.Time        `json:"archived_at"`
	Config     ConfigDocument   `json:"config"`
	Parcels    []ParcelDocument `json:"parcels"`
	// Blocks is the borsh-encoded block map, base64 in JSON.
	Blocks []byte `json:"blocks"`
}

type ConfigDocument struct {
	engine.GridConfig
	RewardsPerCell string `json:"rewards_per_cell"`
	UnlockedRing   uint8  `json:"unlocked_ring"`
}

type ParcelDocument struct {
	ID         uint16      `json:"id"`
	Asset      string      `json:"asset"`
	Rect       parcel.Rect `json:"rect"`
	Checkpoint string      `json:"checkpoint"`
}

// NewDocument converts a snapshot for archiving.
func NewDocument(snap engine.Snapshot, at time.Time) (Document, error) {
	blocks, err := snap.Grid.MarshalBinary()
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		Version:    FormatVersion,
		ArchivedAt: at.UTC(),
		Config: ConfigDocument{
			GridConfig:     snap.Config,
			RewardsPerCell: snap.Config.RewardsPerCell.Dec(),
			UnlockedRing:   ring.Unlocked(snap.Config.TotalBurned, snap.Config.RingThresholds),
		},
		Parcels: make([]ParcelDocument, 0, len(snap.Parcels)),
		Blocks:  blocks,
	}
	for _, rec := range snap.Parcels {
		doc.Parcels = append(doc.Parcels, ParcelDocument{
			ID:         rec.ID,
			Asset:      rec.Asset.String(),
			Rect:       rec.Rect,
			Checkpoint: rec.Checkpoint.Dec(),
		})
	}
	return doc, nil
}

// Archive uploads the snapshot and returns its object key.
func (a *Archiver) Archive(ctx context.Context, snap engine.Snapshot) (string, error) {
	now := a.cfg.Clock.Now().UTC()
	doc, err := NewDocument(snap, now)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := a.objectKey(now)
	_, err = a.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to s3://%s/%s: %w", a.cfg.Bucket, key, err)
	}

	a.log.Info("archive: uploaded grid snapshot",
		"bucket", a.cfg.Bucket,
		"key", key,
		"bytes", len(body),
		"parcels", len(doc.Parcels))
	return key, nil
}

// objectKey is <prefix>/YYYY/MM/DD/<timestamp>-<uuid>.json.
func (a *Archiver) objectKey(at time.Time) string {
	name := fmt.Sprintf("%s-%s.json", at.Format("20060102T150405Z"), uuid.NewString())
	return path.Join(a.cfg.Prefix, at.Format("2006/01/02"), name)
}

// normalizeKey cleans a key prefix so it stays inside the bucket root.
func normalizeKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}
