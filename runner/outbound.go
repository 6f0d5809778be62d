package runner

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModule is the import namespace guests use for outbound HTTP.
const HostModule = "wasi_experimental_http"

// Error codes returned to the guest from every host function.
const (
	outboundOK                uint32 = 0
	outboundErrInvalid        uint32 = 1
	outboundErrNotAllowed     uint32 = 2
	outboundErrInvalidHandle  uint32 = 3
	outboundErrRequestFailed  uint32 = 4
	outboundErrBufferTooSmall uint32 = 5
	outboundErrTooMany        uint32 = 6
)

// maxOutboundBody caps how much of a response the host buffers for the guest.
const maxOutboundBody = 64 << 20

type outboundResponse struct {
	status int
	header http.Header
	body   *bytes.Reader
}

// outboundState is per-invocation: the handler's allow-list, the
// concurrency limiter, and the open response handles. It travels on the
// call context so the single host module instance serves all handlers.
type outboundState struct {
	allowed []string
	sem     chan struct{}
	client  *http.Client

	mu        sync.Mutex
	next      uint32
	responses map[uint32]*outboundResponse
}

func newOutboundState(allowed []string, maxConcurrency uint32) *outboundState {
	st := &outboundState{
		allowed: allowed,
		client:  http.DefaultClient,
	}
	if maxConcurrency > 0 {
		st.sem = make(chan struct{}, maxConcurrency)
	}
	return st
}

type outboundKey struct{}

func withOutboundState(ctx context.Context, st *outboundState) context.Context {
	return context.WithValue(ctx, outboundKey{}, st)
}

func outboundFrom(ctx context.Context) *outboundState {
	st, _ := ctx.Value(outboundKey{}).(*outboundState)
	return st
}

// allowedOrigin reports whether u's origin appears in the allow-list.
// List entries are origins ("https://api.example.com"); an entry without
// a scheme matches any scheme on that host. An empty list denies all.
func allowedOrigin(allowed []string, u *url.URL) bool {
	for _, entry := range allowed {
		if strings.Contains(entry, "://") {
			e, err := url.Parse(entry)
			if err != nil {
				continue
			}
			if strings.EqualFold(e.Host, u.Host) && strings.EqualFold(e.Scheme, u.Scheme) {
				return true
			}
			continue
		}
		// Bare "host[:port]" entries match any scheme.
		if strings.EqualFold(entry, u.Host) {
			return true
		}
	}
	return false
}

var i32 = api.ValueTypeI32

// instantiateOutbound registers the wasi_experimental_http host module.
func instantiateOutbound(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostReq),
			[]api.ValueType{i32, i32, i32, i32, i32, i32, i32, i32, i32, i32},
			[]api.ValueType{i32}).
		Export("req").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostBodyRead),
			[]api.ValueType{i32, i32, i32, i32},
			[]api.ValueType{i32}).
		Export("body_read").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostHeaderGet),
			[]api.ValueType{i32, i32, i32, i32, i32, i32},
			[]api.ValueType{i32}).
		Export("header_get").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostClose),
			[]api.ValueType{i32},
			[]api.ValueType{i32}).
		Export("close").
		Instantiate(ctx)
	return err
}

// hostReq performs one outbound request:
//
//	req(url_ptr, url_len, method_ptr, method_len, headers_ptr, headers_len,
//	    body_ptr, body_len, status_ptr, handle_ptr) -> err
func hostReq(ctx context.Context, mod api.Module, stack []uint64) {
	st := outboundFrom(ctx)
	if st == nil {
		stack[0] = uint64(outboundErrNotAllowed)
		return
	}

	mem := mod.Memory()
	urlBytes, ok1 := mem.Read(uint32(stack[0]), uint32(stack[1]))
	methodBytes, ok2 := mem.Read(uint32(stack[2]), uint32(stack[3]))
	headerBytes, ok3 := mem.Read(uint32(stack[4]), uint32(stack[5]))
	bodyBytes, ok4 := mem.Read(uint32(stack[6]), uint32(stack[7]))
	statusPtr, handlePtr := uint32(stack[8]), uint32(stack[9])
	if !ok1 || !ok2 || !ok3 || !ok4 {
		stack[0] = uint64(outboundErrInvalid)
		return
	}

	target, err := url.Parse(string(urlBytes))
	if err != nil || !target.IsAbs() {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	if !allowedOrigin(st.allowed, target) {
		stack[0] = uint64(outboundErrNotAllowed)
		return
	}

	if st.sem != nil {
		select {
		case st.sem <- struct{}{}:
			defer func() { <-st.sem }()
		default:
			stack[0] = uint64(outboundErrTooMany)
			return
		}
	}

	req, err := http.NewRequestWithContext(ctx, string(methodBytes), target.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	for _, line := range strings.Split(string(headerBytes), "\n") {
		if name, value, found := strings.Cut(line, ":"); found {
			req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	resp, err := st.client.Do(req)
	if err != nil {
		stack[0] = uint64(outboundErrRequestFailed)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOutboundBody))
	if err != nil {
		stack[0] = uint64(outboundErrRequestFailed)
		return
	}

	st.mu.Lock()
	if st.responses == nil {
		st.responses = make(map[uint32]*outboundResponse)
	}
	st.next++
	handle := st.next
	st.responses[handle] = &outboundResponse{
		status: resp.StatusCode,
		header: resp.Header,
		body:   bytes.NewReader(body),
	}
	st.mu.Unlock()

	if !mem.WriteUint32Le(statusPtr, uint32(resp.StatusCode)) || !mem.WriteUint32Le(handlePtr, handle) {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	stack[0] = uint64(outboundOK)
}

func (st *outboundState) response(handle uint32) *outboundResponse {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.responses[handle]
}

// hostBodyRead streams response bytes: body_read(handle, buf_ptr,
// buf_len, written_ptr) -> err. written == 0 signals end of body.
func hostBodyRead(ctx context.Context, mod api.Module, stack []uint64) {
	st := outboundFrom(ctx)
	if st == nil {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	resp := st.response(uint32(stack[0]))
	if resp == nil {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	bufPtr, bufLen, writtenPtr := uint32(stack[1]), uint32(stack[2]), uint32(stack[3])

	buf := make([]byte, bufLen)
	n, err := resp.body.Read(buf)
	if err != nil && err != io.EOF {
		stack[0] = uint64(outboundErrRequestFailed)
		return
	}
	if n > 0 && !mod.Memory().Write(bufPtr, buf[:n]) {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	if !mod.Memory().WriteUint32Le(writtenPtr, uint32(n)) {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	stack[0] = uint64(outboundOK)
}

// hostHeaderGet copies one response header value:
//
//	header_get(handle, name_ptr, name_len, value_ptr, value_len, written_ptr) -> err
func hostHeaderGet(ctx context.Context, mod api.Module, stack []uint64) {
	st := outboundFrom(ctx)
	if st == nil {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	resp := st.response(uint32(stack[0]))
	if resp == nil {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	mem := mod.Memory()
	nameBytes, ok := mem.Read(uint32(stack[1]), uint32(stack[2]))
	if !ok {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	value := resp.header.Get(string(nameBytes))
	valuePtr, valueLen, writtenPtr := uint32(stack[3]), uint32(stack[4]), uint32(stack[5])
	if uint32(len(value)) > valueLen {
		stack[0] = uint64(outboundErrBufferTooSmall)
		return
	}
	if len(value) > 0 && !mem.Write(valuePtr, []byte(value)) {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	if !mem.WriteUint32Le(writtenPtr, uint32(len(value))) {
		stack[0] = uint64(outboundErrInvalid)
		return
	}
	stack[0] = uint64(outboundOK)
}

// hostClose releases a response handle: close(handle) -> err.
func hostClose(ctx context.Context, _ api.Module, stack []uint64) {
	st := outboundFrom(ctx)
	if st == nil {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	handle := uint32(stack[0])
	st.mu.Lock()
	_, ok := st.responses[handle]
	delete(st.responses, handle)
	st.mu.Unlock()
	if !ok {
		stack[0] = uint64(outboundErrInvalidHandle)
		return
	}
	stack[0] = uint64(outboundOK)
}
