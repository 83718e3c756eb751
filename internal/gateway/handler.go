package gateway

import (
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"tgnotify/internal/config"
	"tgnotify/internal/ingest"
	"tgnotify/internal/journal"
	"tgnotify/internal/telegram"
	"tgnotify/internal/topics"
	"tgnotify/pkg/logx"
)

// Deliverer is the downstream fan-out the handler drives.
// *telegram.Client satisfies it.
type Deliverer interface {
	FanOutText(ctx context.Context, recipients []string, topic, sender, text string) []telegram.Outcome
	FanOutDocument(ctx context.Context, recipients []string, topic, sender, message, filename string, content []byte) []telegram.Outcome
}

// Policy resolves the reporting choices left configurable: how authorization
// failures surface, and whether all-timeout failures get 504.
type Policy struct {
	AuthFailure         string
	DistinguishTimeouts bool
}

// Handler serves POST /{topic}/{sender}. The topic table, policy and body
// limit are snapshots swapped atomically on config reload; in-flight
// requests keep the snapshot they started with.
type Handler struct {
	log     logx.Logger
	client  Deliverer
	journal journal.Store // may be nil

	registry atomic.Pointer[topics.Registry]
	policy   atomic.Pointer[Policy]
	maxBody  atomic.Int64
}

func NewHandler(client Deliverer, jstore journal.Store, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handler{log: log, client: client, journal: jstore}
	empty, _ := topics.Build(nil)
	h.registry.Store(empty)
	h.policy.Store(&Policy{AuthFailure: config.AuthFailureNotFound})
	h.maxBody.Store(config.DefaultMaxBodyBytes)
	return h
}

// Apply swaps the hot-reloadable request-path settings.
func (h *Handler) Apply(reg *topics.Registry, pol Policy, maxBody int64) {
	if pol.AuthFailure == "" {
		pol.AuthFailure = config.AuthFailureNotFound
	}
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	h.registry.Store(reg)
	h.policy.Store(&pol)
	h.maxBody.Store(maxBody)
}

// Mux returns the routing table for the public listener.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{topic}/{sender}", h.handlePost)
	return mux
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	topicName := r.PathValue("topic")
	sender := r.PathValue("sender")
	log := h.log.With(logx.String("topic", topicName), logx.String("sender", sender))

	addr, err := clientAddr(r)
	if err != nil {
		log.Error("cannot determine client address", logx.Err(err))
		http.Error(w, "cannot determine client address", http.StatusInternalServerError)
		return
	}
	log = log.With(logx.String("addr", addr.String()))

	pol := h.policy.Load()
	topic, found := h.registry.Load().Resolve(topicName)
	if !found || !topic.Allowed(addr) {
		if found && pol.AuthFailure == config.AuthFailureForbidden {
			log.Warn("source address not allowed")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		// Unknown topics and (by default) disallowed sources get the same
		// answer, so callers cannot probe which topics exist.
		log.Warn("rejected", logx.Bool("known_topic", found))
		http.Error(w, "no such topic", http.StatusNotFound)
		return
	}

	if maxBody := h.maxBody.Load(); maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}

	mediaType := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}

	// Deliveries already issued are allowed to finish even if the inbound
	// connection drops mid-request.
	sendCtx := context.WithoutCancel(r.Context())

	var (
		kind string
		outs []telegram.Outcome
	)
	switch mediaType {
	case "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body: "+err.Error(), bodyErrStatus(err))
			return
		}
		if !utf8.Valid(body) {
			http.Error(w, "message is not valid UTF-8", http.StatusBadRequest)
			return
		}
		kind = "text"
		outs = h.client.FanOutText(sendCtx, topic.Recipients, topicName, sender, string(body))

	case "multipart/form-data":
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, err := ingest.Read(mr)
		if err != nil {
			log.Warn("multipart rejected", logx.Err(err))
			http.Error(w, err.Error(), bodyErrStatus(err))
			return
		}
		kind = "document"
		outs = h.client.FanOutDocument(sendCtx, topic.Recipients, topicName, sender,
			payload.Message, payload.Filename, payload.Content)

	default:
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	status := aggregate(outs, *pol)
	failed, timeouts := telegram.Summarize(outs)
	h.record(journal.Entry{
		At:         start,
		Topic:      topicName,
		Sender:     sender,
		ClientAddr: addr.String(),
		Kind:       kind,
		Recipients: len(outs),
		Failed:     failed,
		Timeouts:   timeouts,
		Status:     status,
		TookMS:     time.Since(start).Milliseconds(),
	})

	if status == http.StatusNoContent {
		log.Info("delivered",
			logx.String("kind", kind),
			logx.Int("recipients", len(outs)),
			logx.Duration("took", time.Since(start)),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.Error("delivery failed",
		logx.String("kind", kind),
		logx.Int("recipients", len(outs)),
		logx.Int("failed", failed),
		logx.Int("timeouts", timeouts),
	)
	http.Error(w, "delivery failed", status)
}

// aggregate folds per-recipient outcomes into one response status. Partial
// success is still overall failure; the caller learns no per-recipient
// detail.
func aggregate(outs []telegram.Outcome, pol Policy) int {
	failed, timeouts := telegram.Summarize(outs)
	if failed == 0 {
		return http.StatusNoContent
	}
	if pol.DistinguishTimeouts && timeouts == failed {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// bodyErrStatus maps body-read failures: an exceeded size cap is 413,
// everything else on the request body is the client's fault.
func bodyErrStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// clientAddr resolves the caller's network address. A reverse-proxy
// supplied header wins over the socket peer; an unparsable value is a local
// error, not an authorization failure.
func clientAddr(r *http.Request) (netip.Addr, error) {
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return netip.ParseAddr(v)
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		return netip.ParseAddr(strings.TrimSpace(first))
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return netip.ParseAddr(host)
}

func (h *Handler) record(e journal.Entry) {
	if h.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.journal.Append(ctx, e); err != nil {
		h.log.Warn("journal append failed", logx.Err(err))
	}
}
