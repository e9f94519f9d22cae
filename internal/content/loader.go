package content

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/secretmark/internal/cryptoutil"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/xerrors"
)

// SSMAPI is the subset of the SSM client the loader calls.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3API is the subset of the S3 client the loader calls.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SignatureVerifier checks a detached signature. *cryptoutil.KMSVerifier
// implements it.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type LoaderOptions struct {
	Logger log.Logger

	// SSMParam holds the active bundle hash, "sha256:<hex>" or bare hex.
	SSMParam string

	// Bundles live at s3://{S3Bucket}/{S3Prefix}/{hash}.tar.gz with an
	// optional {hash}.tar.gz.sig next to them.
	S3Bucket string
	S3Prefix string

	// SigningKeyARN enables signature verification when Verifier is nil.
	SigningKeyARN string

	// Clients default to ones built from AWSConfig or the default chain.
	SSM       SSMAPI
	S3        S3API
	Verifier  SignatureVerifier
	AWSConfig *aws.Config
}

type Loader struct {
	opts     LoaderOptions
	ssm      SSMAPI
	s3       S3API
	verifier SignatureVerifier
	logger   log.Logger
}

// NewLoader validates opts and builds any AWS clients not supplied.
func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("content loader: SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("content loader: S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	needAWS := opts.SSM == nil || opts.S3 == nil || (opts.Verifier == nil && opts.SigningKeyARN != "")
	var awsCfg aws.Config
	if needAWS {
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
	}

	l := &Loader{opts: opts, ssm: opts.SSM, s3: opts.S3, verifier: opts.Verifier, logger: opts.Logger}
	if l.ssm == nil {
		l.ssm = ssm.NewFromConfig(awsCfg)
	}
	if l.s3 == nil {
		l.s3 = s3.NewFromConfig(awsCfg)
	}
	if l.verifier == nil && opts.SigningKeyARN != "" {
		l.verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), opts.SigningKeyARN)
	}
	return l, nil
}

// FetchCurrentBundleHash reads the active bundle hash from SSM.
func (l *Loader) FetchCurrentBundleHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	return parseBundleHash(*out.Parameter.Value)
}

// parseBundleHash accepts "sha256:<hex>" or "<hex>" and returns lowercase hex.
func parseBundleHash(v string) (string, error) {
	v = strings.TrimSpace(v)
	if algo, rest, ok := strings.Cut(v, ":"); ok {
		if !strings.EqualFold(algo, "sha256") {
			return "", xerrors.Newf("unsupported bundle hash algorithm %q", algo)
		}
		v = rest
	}
	v = strings.ToLower(v)
	if len(v) != 64 {
		return "", xerrors.Newf("bundle hash must be 64 hex characters, got %d", len(v))
	}
	if _, err := hex.DecodeString(v); err != nil {
		return "", xerrors.Wrap(err, "bundle hash is not hex")
	}
	return v, nil
}

func (l *Loader) s3Key(hash string) string {
	if p := strings.Trim(l.opts.S3Prefix, "/"); p != "" {
		return p + "/" + hash + ".tar.gz"
	}
	return hash + ".tar.gz"
}

func (l *Loader) getObject(ctx context.Context, key string, max int64) ([]byte, string, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()
	return readWithHash(out.Body, max)
}

// Load fetches the bundle SSM currently points at.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentBundleHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadHash downloads the bundle for hash, checks its digest and signature,
// and extracts it into memory.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.s3Key(hash)

	l.logger.Info(ctx, "downloading content bundle", "bucket", l.opts.S3Bucket, "key", key)

	data, actual, err := l.getObject(ctx, key, maxBundleSize)
	if err != nil {
		return nil, err
	}
	if !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual)
	}

	signed := false
	if l.verifier != nil {
		sig, _, err := l.getObject(ctx, key+".sig", maxSignatureSize)
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch bundle signature")
		}
		if err := l.verifier.VerifySignature(ctx, []byte(hash), sig); err != nil {
			return nil, xerrors.Wrap(err, "verify bundle signature")
		}
		signed = true
	}

	fsys, err := extractTarGzToMem(data)
	if err != nil {
		return nil, xerrors.Wrap(err, "extract bundle")
	}

	snap := &Snapshot{
		FS: fsys,
		Meta: Meta{
			Version:    readVersion(fsys),
			SHA256:     hash,
			VerifiedAt: time.Now().UTC(),
			Source:     SourceS3,
			Signed:     signed,
		},
		LoadedAt: loadedAt,
	}

	l.logger.Info(ctx, "loaded content bundle",
		"hash", truncHash(hash),
		"bytes", len(data),
		"version", snap.Meta.Version,
		"signed", signed,
	)
	return snap, nil
}

// LoadIntoManager loads the current bundle, validates it with vopts and
// makes it active. The manager is untouched on any error.
func (l *Loader) LoadIntoManager(ctx context.Context, mgr *Manager, vopts ValidationOptions) error {
	snap, err := l.Load(ctx)
	if err != nil {
		return err
	}
	if err := ValidateSnapshot(snap, vopts); err != nil {
		return err
	}
	mgr.Set(*snap)
	return nil
}
