package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"nidb-uploader/internal/anonymizer"
	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/config"
	"nidb-uploader/internal/identity"
	"nidb-uploader/internal/profiles"
	"nidb-uploader/internal/progress"
	"nidb-uploader/internal/session"
)

// Env carries the loaded settings and the log sinks shared by every command.
type Env struct {
	Cfg *config.Config
	Log *progress.OpLog
	Out io.Writer

	audit  *identity.AuditLog
	ledger *progress.Ledger
}

// Open sets up the operation log. console, when non-nil, mirrors it.
func Open(cfg *config.Config, out, console io.Writer) (*Env, error) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("could not parse log level: %w", err)
	}
	oplog, err := progress.OpenOpLog(cfg.Log.File, level, console)
	if err != nil {
		return nil, err
	}
	return &Env{Cfg: cfg, Log: oplog, Out: out}, nil
}

// Close flushes and closes every sink that was opened.
func (e *Env) Close() error {
	var errs []error
	if e.audit != nil {
		errs = append(errs, e.audit.Close())
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Close())
	}
	errs = append(errs, e.Log.Close())
	return errors.Join(errs...)
}

// Profiles returns the connection profile store.
func (e *Env) Profiles() *profiles.Store {
	return profiles.NewStore(e.Cfg.ConnectionsFile)
}

// Audit opens the identifier audit log on first use.
func (e *Env) Audit() (*identity.AuditLog, error) {
	if e.audit == nil {
		a, err := identity.OpenAuditLog(e.Cfg.Log.AuditFile)
		if err != nil {
			return nil, err
		}
		e.audit = a
	}
	return e.audit, nil
}

// Ledger opens the upload ledger on first use.
func (e *Env) Ledger() (*progress.Ledger, error) {
	if e.ledger == nil {
		l, err := progress.OpenLedger(e.Cfg.Log.LedgerFile)
		if err != nil {
			return nil, err
		}
		e.ledger = l
	}
	return e.ledger, nil
}

// Connection resolves the archive credentials. A selected profile wins over
// the connection.* settings.
func (e *Env) Connection() (profiles.Profile, error) {
	c := e.Cfg.Connection
	if c.Profile >= 0 {
		all, err := e.Profiles().Load()
		if err != nil {
			return profiles.Profile{}, err
		}
		if c.Profile >= len(all) {
			return profiles.Profile{}, fmt.Errorf("connection profile %d does not exist (%d saved)", c.Profile, len(all))
		}
		return all[c.Profile], nil
	}
	if c.Server == "" {
		return profiles.Profile{}, errors.New("no connection configured: set connection.server or select a profile")
	}
	return profiles.Profile{Server: c.Server, Username: c.Username, PasswordHash: c.PasswordHash}, nil
}

// Proxy converts the proxy settings.
func (e *Env) Proxy() archive.Proxy {
	p := e.Cfg.Proxy
	return archive.Proxy{
		Type:     archive.ProxyType(p.Type),
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
	}
}

// Client builds an archive client for profile.
func (e *Env) Client(p profiles.Profile) (*archive.Client, error) {
	return archive.New(archive.Options{
		Server:       p.Server,
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
		Proxy:        e.Proxy(),
		Timeout:      e.Cfg.Upload.Timeout,
	}, e.Log.Logger)
}

// AnonymizeOptions converts the anonymize.* settings.
func (e *Env) AnonymizeOptions() anonymizer.Options {
	a := e.Cfg.Anonymize
	return anonymizer.Options{
		ReplacePatientName: a.ReplacePatientName,
		ReplacePatientID:   a.ReplacePatientID,
		ReplaceBirthDate:   a.ReplaceBirthDate,
		RemoveBirthDate:    a.RemoveBirthDate,
	}
}

// SessionOptions builds coordinator options for profile and modality.
func (e *Env) SessionOptions(p profiles.Profile, modality string, anon anonymizer.Options) session.Options {
	u := e.Cfg.Upload
	return session.Options{
		Server:                p.Server,
		Username:              p.Username,
		InstanceID:            u.InstanceID,
		ProjectID:             u.ProjectID,
		SiteID:                u.SiteID,
		EquipmentID:           u.EquipmentID,
		MatchIDOnly:           u.MatchIDOnly,
		Modality:              modality,
		Spec:                  anonymizer.SpecFromOptions(anon),
		TempDir:               e.Cfg.TempDir,
		MaxBatchBytes:         u.MaxBatchBytes,
		MaxBatchFiles:         u.MaxBatchFiles,
		Workers:               u.Workers,
		AbortOnBadTransaction: u.AbortOnBadTransaction,
	}
}

// Coordinator wires a coordinator with the audit log and ledger attached.
func (e *Env) Coordinator(client session.Archive, opts session.Options) (*session.Coordinator, error) {
	audit, err := e.Audit()
	if err != nil {
		return nil, err
	}
	engine := anonymizer.NewEngine(audit, e.Log.Logger)
	c := session.NewCoordinator(client, engine, opts, e.Log.Logger)

	ledger, err := e.Ledger()
	if err != nil {
		e.Log.Warn().Err(err).Msg("Upload ledger unavailable")
	} else {
		c.Recorder = ledger
	}
	return c, nil
}
