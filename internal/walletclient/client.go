// Package walletclient wraps the issuer's wallet behind an explicitly
// constructed client with a bounded retry policy and a circuit breaker.
// Nothing in this package is a process-wide singleton; callers inject the
// client where they need it.
package walletclient

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bsv-blockchain/go-sdk/wallet"

	"commonsource/internal/platform/metrics"
	domainerrors "commonsource/pkg/domain-errors"
	"commonsource/pkg/platform/circuit"
)

var _ Ops = (*Client)(nil)

// Originator identifies this application to the wallet on every call.
const Originator = "commonsource.app"

// Ops is the subset of the wallet interface the certifier exercises. The
// full wallet.Interface carries many operations this service never needs;
// narrowing here keeps fakes small.
type Ops interface {
	wallet.KeyOperations
	CreateAction(ctx context.Context, args wallet.CreateActionArgs, originator string) (*wallet.CreateActionResult, error)
	SignAction(ctx context.Context, args wallet.SignActionArgs, originator string) (*wallet.SignActionResult, error)
	ListOutputs(ctx context.Context, args wallet.ListOutputsArgs, originator string) (*wallet.ListOutputsResult, error)
	RelinquishOutput(ctx context.Context, args wallet.RelinquishOutputArgs, originator string) (*wallet.RelinquishOutputResult, error)
}

// RetryPolicy bounds retries for transient wallet failures. Protocol-level
// rejections are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Client decorates a wallet with retry and circuit-breaking behavior. It
// implements Ops itself so protocol code can treat it as the wallet.
type Client struct {
	inner   Ops
	retry   RetryPolicy
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Client. metrics may be nil in tests.
func New(inner Ops, retry RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *Client {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		inner:   inner,
		retry:   retry,
		breaker: circuit.New("wallet", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
		metrics: m,
	}
}

// do runs op under the retry policy. Only transient failures are retried;
// anything else is the wallet telling us "no", which retrying cannot fix.
func (c *Client) do(ctx context.Context, name string, op func() error) error {
	if c.breaker.IsOpen() {
		// Let a single probe through so the breaker can close again.
		if err := op(); err != nil {
			c.breaker.RecordFailure()
			return domainerrors.Wrap(domainerrors.CodeTransient, "wallet circuit open: "+name, err)
		}
		c.breaker.RecordSuccess()
		return nil
	}

	var err error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		if !isTransient(err) {
			// Protocol rejection; does not trip the breaker.
			return err
		}
		c.breaker.RecordFailure()
		if attempt == c.retry.MaxAttempts {
			break
		}
		if c.metrics != nil {
			c.metrics.WalletRetries.Inc()
		}
		c.logger.WarnContext(ctx, "retrying wallet call",
			"op", name,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return domainerrors.Wrap(domainerrors.CodeTransient, name+" canceled", ctx.Err())
		case <-time.After(c.retry.Backoff * time.Duration(attempt)):
		}
	}
	return domainerrors.Wrap(domainerrors.CodeTransient, name+" failed after retries", err)
}

// isTransient classifies infrastructure failures that are worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return domainerrors.Is(err, domainerrors.CodeTransient)
}

func (c *Client) GetPublicKey(ctx context.Context, args wallet.GetPublicKeyArgs, _ string) (*wallet.GetPublicKeyResult, error) {
	var res *wallet.GetPublicKeyResult
	err := c.do(ctx, "GetPublicKey", func() (opErr error) {
		res, opErr = c.inner.GetPublicKey(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) Encrypt(ctx context.Context, args wallet.EncryptArgs, _ string) (*wallet.EncryptResult, error) {
	var res *wallet.EncryptResult
	err := c.do(ctx, "Encrypt", func() (opErr error) {
		res, opErr = c.inner.Encrypt(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) Decrypt(ctx context.Context, args wallet.DecryptArgs, _ string) (*wallet.DecryptResult, error) {
	var res *wallet.DecryptResult
	err := c.do(ctx, "Decrypt", func() (opErr error) {
		res, opErr = c.inner.Decrypt(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) CreateHMAC(ctx context.Context, args wallet.CreateHMACArgs, _ string) (*wallet.CreateHMACResult, error) {
	var res *wallet.CreateHMACResult
	err := c.do(ctx, "CreateHMAC", func() (opErr error) {
		res, opErr = c.inner.CreateHMAC(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) VerifyHMAC(ctx context.Context, args wallet.VerifyHMACArgs, _ string) (*wallet.VerifyHMACResult, error) {
	var res *wallet.VerifyHMACResult
	err := c.do(ctx, "VerifyHMAC", func() (opErr error) {
		res, opErr = c.inner.VerifyHMAC(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) CreateSignature(ctx context.Context, args wallet.CreateSignatureArgs, _ string) (*wallet.CreateSignatureResult, error) {
	var res *wallet.CreateSignatureResult
	err := c.do(ctx, "CreateSignature", func() (opErr error) {
		res, opErr = c.inner.CreateSignature(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) VerifySignature(ctx context.Context, args wallet.VerifySignatureArgs, _ string) (*wallet.VerifySignatureResult, error) {
	var res *wallet.VerifySignatureResult
	err := c.do(ctx, "VerifySignature", func() (opErr error) {
		res, opErr = c.inner.VerifySignature(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) CreateAction(ctx context.Context, args wallet.CreateActionArgs, _ string) (*wallet.CreateActionResult, error) {
	var res *wallet.CreateActionResult
	err := c.do(ctx, "CreateAction", func() (opErr error) {
		res, opErr = c.inner.CreateAction(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) SignAction(ctx context.Context, args wallet.SignActionArgs, _ string) (*wallet.SignActionResult, error) {
	var res *wallet.SignActionResult
	err := c.do(ctx, "SignAction", func() (opErr error) {
		res, opErr = c.inner.SignAction(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) ListOutputs(ctx context.Context, args wallet.ListOutputsArgs, _ string) (*wallet.ListOutputsResult, error) {
	var res *wallet.ListOutputsResult
	err := c.do(ctx, "ListOutputs", func() (opErr error) {
		res, opErr = c.inner.ListOutputs(ctx, args, Originator)
		return opErr
	})
	return res, err
}

func (c *Client) RelinquishOutput(ctx context.Context, args wallet.RelinquishOutputArgs, _ string) (*wallet.RelinquishOutputResult, error) {
	var res *wallet.RelinquishOutputResult
	err := c.do(ctx, "RelinquishOutput", func() (opErr error) {
		res, opErr = c.inner.RelinquishOutput(ctx, args, Originator)
		return opErr
	})
	return res, err
}
