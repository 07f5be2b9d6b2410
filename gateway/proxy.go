package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youthconnect/gatekeeper/admission"
	"github.com/youthconnect/gatekeeper/clog"
	"github.com/youthconnect/gatekeeper/resilience"
	"github.com/youthconnect/gatekeeper/xerrors"
)

// hopHeaders 逐跳头，不转发
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UnavailableBody 下游不可用时的 503 响应体
type UnavailableBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Service   string    `json:"service"`
}

// upstreamResponse 已完整读取的下游响应
//
// 响应先缓冲再写回客户端，失败的尝试不会写出任何字节，重试和 fallback 才有意义。
type upstreamResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// proxy 把一个路由前缀转发到一个下游服务
type proxy struct {
	target  Target
	base    *url.URL
	client  *http.Client
	orch    *resilience.Orchestrator
	logger  clog.Logger
	maxBody int64
	now     func() time.Time
}

func newProxy(t Target, client *http.Client, orch *resilience.Orchestrator, logger clog.Logger, maxBody int64, now func() time.Time) (*proxy, error) {
	base, err := url.Parse(t.URL)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse url of %s", t.Name)
	}
	return &proxy{
		target:  t,
		base:    base,
		client:  client,
		orch:    orch,
		logger:  logger.With(clog.String("service", t.Name)),
		maxBody: maxBody,
		now:     now,
	}, nil
}

func (p *proxy) handle(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, p.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	resp, err := resilience.Invoke(ctx, p.orch, p.target.Name,
		func(ctx context.Context) (*upstreamResponse, error) {
			return p.forward(ctx, c.Request, body, admission.ClientIP(c))
		},
		func(ctx context.Context, cause error) (*upstreamResponse, error) {
			return p.unavailable(p.orch.Unavailable(p.target.Name, cause)), nil
		})
	if err != nil {
		var u *resilience.Unavailable
		if !errors.As(err, &u) {
			u = p.orch.Unavailable(p.target.Name, err)
		}
		resp = p.unavailable(u)
	}

	p.write(c, resp)
}

// forward 一次转发尝试，5xx 视为可重试的失败
func (p *proxy) forward(ctx context.Context, in *http.Request, body []byte, clientIP string) (*upstreamResponse, error) {
	out, err := http.NewRequestWithContext(ctx, in.Method, p.upstreamURL(in.URL), bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.WithKind(err, xerrors.KindInvalidArgument)
	}

	copyHeader(out.Header, in.Header)
	removeHopHeaders(out.Header)
	out.Header.Set("X-Forwarded-For", appendForwardedFor(in.Header.Get("X-Forwarded-For"), in.RemoteAddr, clientIP))
	out.Header.Set("X-Forwarded-Host", in.Host)
	if in.TLS != nil {
		out.Header.Set("X-Forwarded-Proto", "https")
	} else {
		out.Header.Set("X-Forwarded-Proto", "http")
	}
	if id := clog.RequestIDFrom(ctx); id != "" {
		out.Header.Set(HeaderRequestID, id)
	}
	out.Host = p.base.Host

	res, err := p.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, xerrors.WithKind(xerrors.Wrap(err, "read upstream body"), xerrors.KindRetryable)
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, xerrors.WithKind(fmt.Errorf("upstream %s responded %d", p.target.Name, res.StatusCode), xerrors.KindRetryable)
	}

	header := res.Header.Clone()
	removeHopHeaders(header)
	return &upstreamResponse{Status: res.StatusCode, Header: header, Body: data}, nil
}

func (p *proxy) upstreamURL(in *url.URL) string {
	path := in.Path
	if p.target.StripPrefix {
		path = strings.TrimPrefix(path, p.target.Prefix)
		if path == "" {
			path = "/"
		}
	}

	u := *p.base
	u.Path = singleJoiningSlash(p.base.Path, path)
	u.RawPath = ""
	u.RawQuery = in.RawQuery
	return u.String()
}

func (p *proxy) unavailable(u *resilience.Unavailable) *upstreamResponse {
	body := UnavailableBody{
		Timestamp: u.Timestamp,
		Status:    http.StatusServiceUnavailable,
		Error:     http.StatusText(http.StatusServiceUnavailable),
		Message:   u.Message,
		Service:   u.Service,
	}
	return &upstreamResponse{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:   mustJSON(body),
	}
}

func (p *proxy) write(c *gin.Context, resp *upstreamResponse) {
	dst := c.Writer.Header()
	for k, vv := range resp.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	c.Status(resp.Status)
	if _, err := c.Writer.Write(resp.Body); err != nil {
		p.logger.DebugContext(c.Request.Context(), "write response failed", clog.Error(err))
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, sf := range strings.Split(f, ",") {
			if sf = strings.TrimSpace(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// appendForwardedFor 在已有链路后追加直连对端地址，链路为空时以客户端 IP 开头
func appendForwardedFor(prior, remoteAddr, clientIP string) string {
	peer, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		peer = remoteAddr
	}
	switch {
	case prior != "" && peer != "":
		return prior + ", " + peer
	case prior != "":
		return prior
	case peer != "":
		return peer
	default:
		return clientIP
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}
