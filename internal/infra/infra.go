package infra

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/dbcopilot/pkg/dbconn"
	"github.com/ruslano69/dbcopilot/pkg/history"
	"github.com/ruslano69/dbcopilot/pkg/llm"
	"github.com/ruslano69/dbcopilot/pkg/query"
	"github.com/ruslano69/dbcopilot/pkg/resultlog"
	"github.com/ruslano69/dbcopilot/pkg/schema"
)

// Infra holds all live infrastructure handles for the running service.
type Infra struct {
	Conn      *dbconn.Connector
	Registry  *query.Registry
	Runner    *query.Runner
	Inspector *schema.Inspector
	History   *history.Store
	Generator *llm.Generator
	Results   *resultlog.RedisPublisher // nil when result_log is disabled

	miniRedis *miniredis.Miniredis // dev-mode internal instance; nil otherwise
}

// Setup initialises storage, the LLM client and the optional Redis
// result log.
//   - dev=true: result_log (when enabled) uses an in-process miniredis.
//   - dev=false: connects to the address from cfg.
func Setup(cfg *Config, dev bool) (*Infra, error) {
	inf := &Infra{
		Conn:     dbconn.New(),
		Registry: query.NewRegistry(),
		Runner:   query.NewRunner(cfg.Server.BatchSize),
	}

	var err error
	inf.History, err = history.NewStore(cfg.Storage.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("infra: history store: %w", err)
	}

	inf.Inspector, err = schema.NewInspector(cfg.Storage.SchemaPath)
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: schema cache: %w", err)
	}

	inf.Generator, err = llm.NewGenerator(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("infra: llm: %w", err)
	}

	if cfg.ResultLog.Enabled {
		addr := cfg.ResultLog.Addr
		if dev {
			inf.miniRedis, err = miniredis.Run()
			if err != nil {
				inf.Close()
				return nil, fmt.Errorf("infra: miniredis: %w", err)
			}
			addr = inf.miniRedis.Addr()
			log.Info().Str("result_log_redis", addr).Msg("dev: in-process miniredis started")
		}
		inf.Results = resultlog.NewRedisPublisher(resultlog.Config{
			Address:  addr,
			Password: cfg.ResultLog.Password,
			DB:       cfg.ResultLog.DB,
			TTL:      cfg.ResultLog.TTL,
		})
	}

	return inf, nil
}

// Close releases all infrastructure resources.
func (inf *Infra) Close() {
	if inf.Results != nil {
		_ = inf.Results.Close()
	}
	if inf.miniRedis != nil {
		inf.miniRedis.Close()
	}
	if inf.Inspector != nil {
		_ = inf.Inspector.Close()
	}
	if inf.History != nil {
		_ = inf.History.Close()
	}
	if inf.Conn != nil {
		_ = inf.Conn.Close()
	}
}
