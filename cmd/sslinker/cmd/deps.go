package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sslinker/audit"
	boltjournal "github.com/jmcleod/sslinker/audit/bbolt"
	"github.com/jmcleod/sslinker/config"
	"github.com/jmcleod/sslinker/internal/toolexec"
	"github.com/jmcleod/sslinker/lifecycle"
	"github.com/jmcleod/sslinker/metrics"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

// journalFile is the bbolt database under paths.data_dir.
const journalFile = "journal.db"

// services is the wired object graph shared by every command.
type services struct {
	svc     *lifecycle.Service
	ctrl    *proxy.Controller
	runner  *toolexec.ExecRunner
	journal audit.Store
	metrics *metrics.Collector
}

// openServices builds the lifecycle service from cfg. bbolt admits one
// process per file, so while the server runs a CLI command gives up on the
// journal after journalWait and runs unjournaled.
func openServices(cfg *config.Config, journalWait time.Duration) (*services, error) {
	s := &services{
		metrics: metrics.NewCollector(cfg.Metrics.Namespace, nil),
		runner:  toolexec.NewExecRunner(cfg.Tools.Timeout),
	}
	s.runner.Observer = s.metrics.ObserveTool

	store := storage.New(cfg.Paths.CertDir, storage.WithLogger(logger))

	var tool pki.CryptoTool
	switch cfg.Tools.Crypto {
	case config.CryptoNative:
		tool = pki.NewNative()
	default:
		tool = pki.NewOpenSSL(s.runner, pki.WithBinary(cfg.Tools.OpenSSL))
	}
	ca := pki.New(store, tool,
		pki.WithSettings(pki.Settings{
			CommonName:   cfg.CA.CommonName,
			KeyBits:      cfg.CA.KeyBits,
			LeafKeyBits:  cfg.CA.LeafKeyBits,
			ValidityDays: cfg.CA.ValidityDays,
		}),
		pki.WithLogger(logger))

	engine := proxy.DefaultEngine()
	if cfg.Paths.TemplateFile != "" {
		e, err := proxy.LoadEngine(cfg.Paths.TemplateFile)
		if err != nil {
			return nil, err
		}
		engine = e
	}

	s.ctrl = proxy.NewController(cfg.Paths.ProxyConfDir,
		proxy.NewNginx(s.runner, cfg.Tools.Nginx),
		proxy.WithProbes(proxy.DefaultProbes(s.runner, cfg.Tools.Systemctl, cfg.Tools.Service, cfg.Tools.ServiceName)...),
		proxy.WithLogger(logger))

	s.journal = openJournal(cfg.Paths.DataDir, journalWait)

	s.svc = lifecycle.New(store, ca, s.ctrl, storage.NewAddressFile(cfg.Paths.LocalAddrFile),
		lifecycle.WithEngine(engine),
		lifecycle.WithJournal(s.journal),
		lifecycle.WithRecorder(s.metrics),
		lifecycle.WithLogger(logger))
	return s, nil
}

func openJournal(dataDir string, wait time.Duration) audit.Store {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		logger.Warn("journal disabled", "error", fmt.Errorf("creating data directory: %w", err))
		return audit.Discard
	}
	path := filepath.Join(dataDir, journalFile)
	j, err := boltjournal.NewStoreFromFile(path, &bbolt.Options{Timeout: wait})
	if err != nil {
		logger.Warn("journal disabled", "path", path, "error", err)
		return audit.Discard
	}
	return j
}

// Close releases the journal and waits for detached tool processes.
func (s *services) Close() error {
	err := s.journal.Close()
	s.runner.Wait()
	return err
}
