// Package copycore implements the single-file forensic two-read copy: one
// combined read-hash-write pass over the source, one read-hash pass over
// the destination once it has been flushed and fsync'd to disk. Writes land
// directly at the final destination path rather than a temp file plus
// rename, so a cancelled run leaves the partial file exactly where the
// caller expects it.
package copycore

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"forensiccopy/errs"
	"forensiccopy/internal/model"
)

// SampleInterval is the minimum wall-clock spacing between progress
// samples taken inside the streaming loop.
const SampleInterval = 100 * time.Millisecond

// Options configures one Copy call.
type Options struct {
	BufferSize          int
	CalculateHash       bool
	Algorithm           model.HashAlgorithm
	VerifyOnReadFailure bool

	// afterWriteFsync is a test-only seam invoked after the destination has
	// been written, fsync'd, and closed, but before it is reopened for the
	// destination re-hash. It exists to simulate on-media corruption
	// between write and verification reread; nil in every production call.
	afterWriteFsync func(dst string) error
}

// Tokens are the cooperative cancel/pause hooks the orchestrator threads
// through to every Copy Core instance it owns.
type Tokens struct {
	Cancelled func() bool
	Pause     func()
}

func (t Tokens) isCancelled() bool {
	return t.Cancelled != nil && t.Cancelled()
}

func (t Tokens) pause() {
	if t.Pause != nil {
		t.Pause()
	}
}

// SampleFunc receives (bytesSinceLastSample, elapsedSinceLastSample) every
// time the streaming loop takes a throughput sample.
type SampleFunc func(bytesDelta int64, elapsed time.Duration)

// Result augments model.FileOutcome with whether this call eliminated a
// disk read by combining the source hash with the copy write.
type Result struct {
	Outcome        model.FileOutcome
	DiskReadSaved  bool
}

func newHasher(algo model.HashAlgorithm) hash.Hash {
	if algo == model.MD5 {
		return md5.New()
	}
	return sha256.New()
}

// Copy runs the two-read forensic copy contract for one file. On success
// or a recorded failure it returns a populated Result; the second return
// value is non-nil only for conditions the caller must treat as aborting
// the whole run (hash mismatch, cancellation, I/O failure).
func Copy(ctx context.Context, src, dst string, opts Options, tokens Tokens, onSample SampleFunc) (Result, error) {
	start := time.Now()

	bufferSize := clampBufferSize(opts.BufferSize)

	if samePath(src, dst) {
		e := errs.New(errs.DestinationWrite, "destination equals source", "Source and destination are the same file.").
			WithContext("path", src)
		return Result{Outcome: model.FileOutcome{Source: src, Destination: dst, Err: e}}, e
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		e := errs.Wrap(errs.SourceAccess, "stat source", "Source file not found or unreadable.", err).
			WithContext("path", src)
		return Result{Outcome: model.FileOutcome{Source: src, Destination: dst, Err: e}}, e
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		e := errs.Wrap(errs.DestinationWrite, "mkdir destination parent", "Could not create destination directory.", err).
			WithContext("path", dst)
		return Result{Outcome: model.FileOutcome{Source: src, Destination: dst, Err: e}}, e
	}

	var res Result
	var sourceHash, destHash string
	var bytesCopied int64

	if opts.CalculateHash && srcInfo.Size() < model.SmallFileThreshold {
		bytesCopied, sourceHash, destHash, err = copySmall(src, dst, opts, tokens)
	} else if opts.CalculateHash {
		bytesCopied, sourceHash, destHash, err = copyStreamingWithHash(src, dst, bufferSize, opts, tokens, onSample)
		res.DiskReadSaved = true
	} else {
		bytesCopied, err = copyStreamingNoHash(src, dst, bufferSize, tokens, onSample)
	}

	if err != nil {
		res.Outcome = model.FileOutcome{Source: src, Destination: dst, Bytes: bytesCopied, Err: err}
		return res, err
	}

	verified := true
	if opts.CalculateHash {
		verified = sourceHash == destHash
	}

	if opts.CalculateHash && !verified {
		e := errs.New(errs.HashMismatch, "source and destination hashes disagree after write+fsync+reread",
			"File integrity check failed; the copied file may be corrupted.").
			WithContext("destination", dst).
			WithContext("source_hash", sourceHash).
			WithContext("dest_hash", destHash).
			WithContext("algorithm", opts.Algorithm.String())
		res.Outcome = model.FileOutcome{
			Source: src, Destination: dst, Bytes: bytesCopied,
			SourceHash: sourceHash, DestHash: destHash, Verified: false, Err: e,
		}
		return res, e
	}

	// Metadata preservation is best-effort; it does not invalidate an
	// already-verified copy.
	_ = copyMetadata(src, dst, srcInfo)

	duration := time.Since(start)
	speed := 0.0
	if duration > 0 {
		speed = (float64(bytesCopied) / (1024 * 1024)) / duration.Seconds()
	}

	res.Outcome = model.FileOutcome{
		Source:      src,
		Destination: dst,
		Bytes:       bytesCopied,
		SourceHash:  sourceHash,
		DestHash:    destHash,
		Verified:    verified,
		Duration:    duration,
		SpeedMBPS:   speed,
	}
	return res, nil
}

// samePath reports whether src and dst name the same file, either literally
// or after symlink resolution, guarding against a copy truncating its own
// source via os.O_TRUNC.
func samePath(src, dst string) bool {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return true
	}
	srcReal, err1 := filepath.EvalSymlinks(src)
	dstReal, err2 := filepath.EvalSymlinks(dst)
	return err1 == nil && err2 == nil && srcReal == dstReal
}

func clampBufferSize(n int) int {
	if n < model.MinBufferSize {
		return model.MinBufferSize
	}
	if n > model.MaxBufferSize {
		return model.MaxBufferSize
	}
	return n
}

// copySmall implements the small-file fast path: read src entirely into
// memory, hash the buffer, write+fsync dst, then re-read dst from disk to
// compute the destination hash. Read-count-equivalent to the streaming
// path, not a single-read shortcut.
func copySmall(src, dst string, opts Options, tokens Tokens) (int64, string, string, error) {
	if tokens.isCancelled() {
		return 0, "", "", cancelledErr()
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, "", "", errs.Wrap(errs.SourceAccess, "read source", "Could not read source file.", err).WithContext("path", src)
	}

	sh := newHasher(opts.Algorithm)
	sh.Write(data)
	sourceHash := hex.EncodeToString(sh.Sum(nil))

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", "", errs.Wrap(errs.DestinationWrite, "create destination", "Could not create destination file.", err).WithContext("path", dst)
	}
	n, err := out.Write(data)
	if err != nil || n != len(data) {
		out.Close()
		return 0, "", "", errs.Wrap(errs.DestinationWrite, "short write", "Destination write was incomplete.", err).WithContext("path", dst)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, "", "", errs.Wrap(errs.DestinationWrite, "fsync destination", "Could not flush destination to disk.", err).WithContext("path", dst)
	}
	if err := out.Close(); err != nil {
		return 0, "", "", errs.Wrap(errs.DestinationWrite, "close destination", "Could not finalize destination file.", err).WithContext("path", dst)
	}

	if opts.afterWriteFsync != nil {
		if err := opts.afterWriteFsync(dst); err != nil {
			return int64(n), sourceHash, "", errs.Wrap(errs.DestinationWrite, "post-write hook", "Destination could not be finalized.", err).WithContext("path", dst)
		}
	}

	if tokens.isCancelled() {
		return int64(n), sourceHash, "", cancelledErr()
	}

	destHash, err := hashDestination(dst, opts.Algorithm, 64*1024, opts.VerifyOnReadFailure, tokens)
	if err != nil {
		return int64(n), sourceHash, "", err
	}

	return int64(n), sourceHash, destHash, nil
}

// copyStreamingWithHash implements the streaming path: one pass over src
// that hashes while writing, followed by a second pass reading dst back
// from disk to compute the destination hash.
func copyStreamingWithHash(src, dst string, bufferSize int, opts Options, tokens Tokens, onSample SampleFunc) (int64, string, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", "", errs.Wrap(errs.SourceAccess, "open source", "Could not open source file.", err).WithContext("path", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", "", errs.Wrap(errs.DestinationWrite, "create destination", "Could not create destination file.", err).WithContext("path", dst)
	}

	sourceHasher := newHasher(opts.Algorithm)
	buf := make([]byte, bufferSize)
	var total int64
	lastSample := time.Now()
	var sinceSample int64

	for {
		if tokens.isCancelled() {
			out.Close()
			return total, "", "", cancelledErr()
		}
		tokens.pause()

		n, readErr := in.Read(buf)
		if n > 0 {
			sourceHasher.Write(buf[:n])
			written, writeErr := out.Write(buf[:n])
			if writeErr != nil || written != n {
				out.Close()
				return total, "", "", errs.Wrap(errs.DestinationWrite, "short write", "Destination write was incomplete.", writeErr).WithContext("path", dst)
			}
			total += int64(n)
			sinceSample += int64(n)
		}

		if elapsed := time.Since(lastSample); elapsed >= SampleInterval {
			if onSample != nil {
				onSample(sinceSample, elapsed)
			}
			sinceSample = 0
			lastSample = time.Now()
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return total, "", "", errs.Wrap(errs.SourceAccess, "read source", "Could not read source file.", readErr).WithContext("path", src)
		}
	}

	if onSample != nil && sinceSample > 0 {
		onSample(sinceSample, time.Since(lastSample))
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return total, "", "", errs.Wrap(errs.DestinationWrite, "fsync destination", "Could not flush destination to disk.", err).WithContext("path", dst)
	}
	if err := out.Close(); err != nil {
		return total, "", "", errs.Wrap(errs.DestinationWrite, "close destination", "Could not finalize destination file.", err).WithContext("path", dst)
	}

	if opts.afterWriteFsync != nil {
		if err := opts.afterWriteFsync(dst); err != nil {
			return total, hex.EncodeToString(sourceHasher.Sum(nil)), "", errs.Wrap(errs.DestinationWrite, "post-write hook", "Destination could not be finalized.", err).WithContext("path", dst)
		}
	}

	if tokens.isCancelled() {
		return total, hex.EncodeToString(sourceHasher.Sum(nil)), "", cancelledErr()
	}

	destHash, err := hashDestination(dst, opts.Algorithm, bufferSize, opts.VerifyOnReadFailure, tokens)
	if err != nil {
		return total, hex.EncodeToString(sourceHasher.Sum(nil)), "", err
	}

	return total, hex.EncodeToString(sourceHasher.Sum(nil)), destHash, nil
}

// copyStreamingNoHash streams src to dst without computing any digests,
// used when calculate_hash is false.
func copyStreamingNoHash(src, dst string, bufferSize int, tokens Tokens, onSample SampleFunc) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errs.Wrap(errs.SourceAccess, "open source", "Could not open source file.", err).WithContext("path", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errs.Wrap(errs.DestinationWrite, "create destination", "Could not create destination file.", err).WithContext("path", dst)
	}

	buf := make([]byte, bufferSize)
	var total int64
	lastSample := time.Now()
	var sinceSample int64

	for {
		if tokens.isCancelled() {
			out.Close()
			return total, cancelledErr()
		}
		tokens.pause()

		n, readErr := in.Read(buf)
		if n > 0 {
			written, writeErr := out.Write(buf[:n])
			if writeErr != nil || written != n {
				out.Close()
				return total, errs.Wrap(errs.DestinationWrite, "short write", "Destination write was incomplete.", writeErr).WithContext("path", dst)
			}
			total += int64(n)
			sinceSample += int64(n)
		}
		if elapsed := time.Since(lastSample); elapsed >= SampleInterval {
			if onSample != nil {
				onSample(sinceSample, elapsed)
			}
			sinceSample = 0
			lastSample = time.Now()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return total, errs.Wrap(errs.SourceAccess, "read source", "Could not read source file.", readErr).WithContext("path", src)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return total, errs.Wrap(errs.DestinationWrite, "fsync destination", "Could not flush destination to disk.", err).WithContext("path", dst)
	}
	if err := out.Close(); err != nil {
		return total, errs.Wrap(errs.DestinationWrite, "close destination", "Could not finalize destination file.", err).WithContext("path", dst)
	}
	return total, nil
}

// hashDestination computes the on-disk destination hash, retrying the read
// exactly once when retryOnFailure is set and the first attempt fails for
// any reason other than cancellation.
func hashDestination(path string, algo model.HashAlgorithm, bufferSize int, retryOnFailure bool, tokens Tokens) (string, error) {
	h, err := hashFile(path, algo, bufferSize, tokens)
	if err == nil || !retryOnFailure {
		return h, err
	}
	var fe *errs.Error
	if errors.As(err, &fe) && fe.Kind == errs.Cancelled {
		return h, err
	}
	return hashFile(path, algo, bufferSize, tokens)
}

func hashFile(path string, algo model.HashAlgorithm, bufferSize int, tokens Tokens) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.DestinationWrite, "reopen destination for verification", "Could not re-read destination file.", err).WithContext("path", path)
	}
	defer f.Close()

	h := newHasher(algo)
	buf := make([]byte, bufferSize)
	for {
		if tokens.isCancelled() {
			return "", cancelledErr()
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errs.Wrap(errs.DestinationWrite, "read destination for verification", "Could not re-read destination file.", err).WithContext("path", path)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyMetadata(src, dst string, srcInfo os.FileInfo) error {
	if err := os.Chmod(dst, srcInfo.Mode()); err != nil {
		return err
	}
	return os.Chtimes(dst, time.Now(), srcInfo.ModTime())
}

func cancelledErr() *errs.Error {
	return errs.New(errs.Cancelled, "operation cancelled", "Operation was cancelled.")
}
