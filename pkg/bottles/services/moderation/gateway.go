package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpclient "github.com/onebottle/onebottle-api/pkg/bottles/helpers/httpclient"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
)

const (
	defaultEndpoint = "https://api.sightengine.com/1.0"
	defaultModels   = "nudity,wad,gore,offensive"
	defaultTimeout  = 20 * time.Second
	maxResponseSize = 4 << 20
)

// Verdict is the normalised outcome of one classification.
type Verdict struct {
	Safe   bool
	Reason string
}

type Config struct {
	APIUser    string
	APISecret  string
	Endpoint   string
	Models     string
	Timeout    time.Duration
	Thresholds Thresholds
}

// Configured reports whether the oracle has credentials.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIUser) != "" && strings.TrimSpace(c.APISecret) != ""
}

// Gateway wraps the external safety oracle. It fails closed: every error
// path yields Safe=false. Without credentials it runs in bypass mode.
type Gateway struct {
	cfg    Config
	bypass bool
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Models == "" {
		cfg.Models = defaultModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds
	}
	g := &Gateway{cfg: cfg, bypass: !cfg.Configured()}
	if g.bypass {
		log.Printf("[moderation] WARN oracle not configured; every submission will be approved without moderation")
	}
	return g
}

// Bypassed reports whether the gateway approves without calling the oracle.
func (g *Gateway) Bypassed() bool { return g.bypass }

func (g *Gateway) Classify(ctx context.Context, locator string, kind models.MediaKind) Verdict {
	if g.bypass {
		log.Printf("[moderation] bypass: approving %s without moderation", locator)
		return Verdict{Safe: true, Reason: "moderation bypassed"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	switch kind {
	case models.MediaKindImage:
		return g.checkImage(ctx, locator)
	case models.MediaKindVideo:
		return g.checkVideo(ctx, locator)
	default:
		return Verdict{Safe: false, Reason: fmt.Sprintf("unsupported media kind %q", kind)}
	}
}

func (g *Gateway) checkImage(ctx context.Context, locator string) Verdict {
	var res imageResponse
	if err := g.post(ctx, "/check.json", locator, &res); err != nil {
		return failed(err)
	}
	if res.Status != "success" {
		return serviceError(res.Status, res.Error)
	}
	if reason := res.evaluate(g.cfg.Thresholds); reason != "" {
		return Verdict{Safe: false, Reason: reason}
	}
	return Verdict{Safe: true}
}

// checkVideo rejects the whole video as soon as one sampled frame is unsafe.
func (g *Gateway) checkVideo(ctx context.Context, locator string) Verdict {
	var res videoResponse
	if err := g.post(ctx, "/video/check-sync.json", locator, &res); err != nil {
		return failed(err)
	}
	if res.Status != "success" {
		return serviceError(res.Status, res.Error)
	}
	if res.Data == nil || len(res.Data.Frames) == 0 {
		return Verdict{Safe: false, Reason: "moderation returned no video frames"}
	}
	for _, f := range res.Data.Frames {
		if reason := f.evaluate(g.cfg.Thresholds); reason != "" {
			return Verdict{Safe: false, Reason: fmt.Sprintf("%s in video frame at %gs", reason, f.Info.Position)}
		}
	}
	return Verdict{Safe: true}
}

func (g *Gateway) post(ctx context.Context, path, locator string, out any) error {
	form := url.Values{}
	form.Set("api_user", g.cfg.APIUser)
	form.Set("api_secret", g.cfg.APISecret)
	form.Set("models", g.cfg.Models)
	form.Set("url", locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpclient.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("moderation request failed: %s body=%s", resp.Status, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode moderation response: %w", err)
	}
	return nil
}

func failed(err error) Verdict {
	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Safe: false, Reason: "moderation timed out"}
	}
	return Verdict{Safe: false, Reason: "moderation check failed: " + err.Error()}
}

func serviceError(status string, e *apiError) Verdict {
	reason := fmt.Sprintf("moderation service error (status=%q)", status)
	if e != nil && e.Message != "" {
		reason += ": " + e.Message
	}
	return Verdict{Safe: false, Reason: reason}
}
