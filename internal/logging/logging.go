// Package logging builds the structured logger the engine and CLI use,
// optionally fanning every record out to a remote HTTP endpoint.
//
// Grounded in original_source/conductor/logging_utils.py (configure_logging,
// RemoteLogHandler, get_node_logger) and
// aipilotbyjd-linkflow-go/pkg/logger.New's zap.Config-building shape. The
// Python original's stdlib logging.Handler becomes a zapcore.Core here;
// remote delivery uses resty.dev/v3 instead of urllib.request.
package logging

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"resty.dev/v3"

	"github.com/G14MB0/conductor/internal/config"
)

// New builds the base "conductor" logger: a console (or JSON) encoder to
// stdout, plus a remote core when cfg.RemoteLogging is configured and
// enabled.
func New(cfg *config.GlobalConfig, level zapcore.Level, jsonOutput bool) (*zap.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}

	if cfg != nil && cfg.RemoteLogging != nil && cfg.RemoteLogging.IsEnabled() {
		cores = append(cores, newRemoteCore(cfg.RemoteLogging, level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// NodeLogger returns base scoped to one node invocation, mirroring
// get_node_logger's "conductor.node.<id>" namespace.
func NodeLogger(base *zap.Logger, nodeID string) *zap.Logger {
	return base.Named("node." + nodeID).With(zap.String("node_id", nodeID))
}

// RemoteCore is a zapcore.Core that sends every entry as JSON to a
// RemoteLoggingConfig target, with PUT when Method is "PUT" and POST
// otherwise. Transport failures are printed to stderr and
// otherwise swallowed: remote logging must never fail a flow run.
type RemoteCore struct {
	zapcore.LevelEnabler
	cfg    *config.RemoteLoggingConfig
	client *resty.Client
	fields []zapcore.Field
}

func newRemoteCore(cfg *config.RemoteLoggingConfig, level zapcore.Level) *RemoteCore {
	client := resty.New()
	if !cfg.ShouldVerify() {
		client.SetTLSClientConfig(insecureTLSConfig())
	}
	return &RemoteCore{LevelEnabler: level, cfg: cfg, client: client}
}

func (c *RemoteCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &RemoteCore{LevelEnabler: c.LevelEnabler, cfg: c.cfg, client: c.client, fields: merged}
}

func (c *RemoteCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *RemoteCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		f.AddTo(enc)
	}

	payload := map[string]any{
		"timestamp": ent.Time.Format(time.RFC3339),
		"level":     ent.Level.String(),
		"message":   ent.Message,
		"context":   enc.Fields,
	}

	// Best-effort, non-blocking delivery: a stalled remote sink must never
	// slow down node execution.
	go c.deliver(payload)
	return nil
}

func (c *RemoteCore) deliver(payload map[string]any) {
	req := c.client.R().SetContext(context.Background()).SetBody(payload)
	for k, v := range c.cfg.Headers {
		req.SetHeader(k, v)
	}
	var resp *resty.Response
	var err error
	switch c.cfg.Method {
	case "PUT":
		resp, err = req.Put(c.cfg.Target)
	default:
		resp, err = req.Post(c.cfg.Target)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "conductor: failed to emit remote log: %v\n", err)
		return
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "conductor: remote log endpoint returned %s\n", resp.Status())
	}
}

func (c *RemoteCore) Sync() error { return nil }

func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
