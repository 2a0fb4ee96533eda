package lark

import (
	"context"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Config holds the Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
	// BaseURL overrides the open platform domain (larksuite vs feishu)
	BaseURL string
	Timeout time.Duration
}

// Client is the SDK client the console sends notifications through
type Client struct {
	sdk    *lark.Client
	appID  string
	logger *zap.Logger
}

// NewClient creates a Lark client with a cached tenant token. SDK logs go to logger.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark app_id and app_secret are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []lark.ClientOptionFunc{
		lark.WithEnableTokenCache(true),
		lark.WithLogger(sdkLogger{logger.Named("lark").Sugar()}),
		lark.WithLogLevel(larkcore.LogLevelWarn),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.Timeout))
	}

	return &Client{
		sdk:    lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		appID:  cfg.AppID,
		logger: logger,
	}, nil
}

// AppID returns the app the client acts as
func (c *Client) AppID() string {
	return c.appID
}

// sdkLogger adapts zap to larkcore.Logger
type sdkLogger struct {
	s *zap.SugaredLogger
}

func (l sdkLogger) Debug(_ context.Context, args ...interface{}) { l.s.Debug(args...) }
func (l sdkLogger) Info(_ context.Context, args ...interface{})  { l.s.Info(args...) }
func (l sdkLogger) Warn(_ context.Context, args ...interface{})  { l.s.Warn(args...) }
func (l sdkLogger) Error(_ context.Context, args ...interface{}) { l.s.Error(args...) }

var _ larkcore.Logger = sdkLogger{}
