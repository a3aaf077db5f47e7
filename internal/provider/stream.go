package provider

import (
	"context"
	"strings"
	"time"
)

// retryBaseDelay 指数退避的基准间隔 / base interval of the exponential backoff
var retryBaseDelay = 150 * time.Millisecond

type openFunc func(ctx context.Context) (Stream, error)

// retryingStream 在收到第一个片段前失败时重新建立流；之后的失败直接上报
// retryingStream re-establishes the underlying stream when it fails before the first
// fragment; once a fragment has been delivered, failures are final.
type retryingStream struct {
	ctx        context.Context
	provider   string
	open       openFunc
	maxRetries int

	attempts  int
	cur       Stream
	delivered bool
	err       error
}

// openStream 建立流并在失败时按 150ms·2^n 退避重试
// openStream establishes a stream, retrying with 150ms·2^n backoff.
func openStream(ctx context.Context, providerName string, maxRetries int, open openFunc) (Stream, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	rs := &retryingStream{ctx: ctx, provider: providerName, open: open, maxRetries: maxRetries}
	if err := rs.connect(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *retryingStream) connect() error {
	var lastErr error
	for rs.attempts <= rs.maxRetries {
		if rs.attempts > 0 {
			backoff := retryBaseDelay * time.Duration(1<<(rs.attempts-1))
			select {
			case <-rs.ctx.Done():
				return newRequestError(rs.provider, "", rs.ctx.Err())
			case <-time.After(backoff):
			}
		}
		rs.attempts++
		s, err := rs.open(rs.ctx)
		if err == nil {
			rs.cur = s
			return nil
		}
		lastErr = err
		// 不可重试的错误 / Non-retryable errors
		if !retryable(err) {
			break
		}
	}
	return newRequestError(rs.provider, "", lastErr)
}

func (rs *retryingStream) Next() bool {
	for {
		if rs.cur == nil || rs.err != nil {
			return false
		}
		if rs.cur.Next() {
			rs.delivered = true
			return true
		}
		err := rs.cur.Err()
		if err == nil {
			return false
		}
		_ = rs.cur.Close()
		rs.cur = nil
		if rs.delivered || rs.attempts > rs.maxRetries || !retryable(err) {
			rs.err = newRequestError(rs.provider, "", err)
			return false
		}
		if cerr := rs.connect(); cerr != nil {
			rs.err = cerr
			return false
		}
	}
}

func (rs *retryingStream) Fragment() string {
	if rs.cur == nil {
		return ""
	}
	return rs.cur.Fragment()
}

func (rs *retryingStream) Err() error { return rs.err }

func (rs *retryingStream) Close() error {
	if rs.cur == nil {
		return nil
	}
	err := rs.cur.Close()
	rs.cur = nil
	return err
}

// Accumulate 按到达顺序拼接片段，每个片段后以累计文本回调 onUpdate；
// 失败时返回携带已累积文本的 RequestError。流总会被关闭。
// Accumulate concatenates fragments in delivery order, calling onUpdate with the running
// total after each one. On failure it returns a *RequestError carrying the partial text.
// The stream is always closed.
func Accumulate(s Stream, onUpdate func(total string)) (string, error) {
	defer s.Close()

	var b strings.Builder
	for s.Next() {
		frag := s.Fragment()
		if frag == "" {
			continue
		}
		b.WriteString(frag)
		if onUpdate != nil {
			onUpdate(b.String())
		}
	}
	if err := s.Err(); err != nil {
		return b.String(), newRequestError("", b.String(), err)
	}
	return b.String(), nil
}
