package xapm

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/omeyang/xapm/pkg/util/xproc"
)

const (
	// AgentName intake 中的 agent 名称
	AgentName = "xapm-go"
	// AgentVersion agent 版本
	AgentVersion = "1.0.0"
)

// UserAgent 上报请求的 User-Agent
func UserAgent() string {
	return AgentName + "/" + AgentVersion
}

type nameVersion struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type agentDoc struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	EphemeralID string `json:"ephemeral_id"`
}

type serviceDoc struct {
	Name        string       `json:"name"`
	Version     string       `json:"version,omitempty"`
	Environment string       `json:"environment,omitempty"`
	Agent       agentDoc     `json:"agent"`
	Framework   *nameVersion `json:"framework,omitempty"`
	Language    nameVersion  `json:"language"`
	Runtime     nameVersion  `json:"runtime"`
}

type processDoc struct {
	PID   int      `json:"pid"`
	PPID  int      `json:"ppid,omitempty"`
	Title string   `json:"title,omitempty"`
	Argv  []string `json:"argv,omitempty"`
}

type systemDoc struct {
	Hostname     string `json:"hostname,omitempty"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
}

type userDoc struct {
	ID string `json:"id,omitempty"`
}

type metadataDoc struct {
	Service serviceDoc        `json:"service"`
	Process processDoc        `json:"process"`
	System  systemDoc         `json:"system"`
	User    *userDoc          `json:"user,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// buildMetadata 序列化 metadata 文档：{"metadata":{...}}
func buildMetadata(cfg Config, ephemeralID string, info xproc.Info) ([]byte, error) {
	goVersion := strings.TrimPrefix(info.GoVersion, "go")
	doc := metadataDoc{
		Service: serviceDoc{
			Name:        cfg.ServiceName,
			Version:     cfg.ServiceVersion,
			Environment: cfg.Environment,
			Agent: agentDoc{
				Name:        AgentName,
				Version:     AgentVersion,
				EphemeralID: ephemeralID,
			},
			Language: nameVersion{Name: "go", Version: goVersion},
			Runtime:  nameVersion{Name: "gc", Version: goVersion},
		},
		Process: processDoc{
			PID:   info.PID,
			PPID:  info.PPID,
			Title: info.Title,
			Argv:  info.Argv,
		},
		System: systemDoc{
			Hostname:     info.Hostname,
			Platform:     info.Platform,
			Architecture: info.Architecture,
		},
		Labels: cfg.Labels,
	}
	if cfg.Framework != "" {
		doc.Service.Framework = &nameVersion{Name: cfg.Framework, Version: cfg.FrameworkVersion}
	}
	if cfg.UserID != "" {
		doc.User = &userDoc{ID: cfg.UserID}
	}
	return json.Marshal(struct {
		Metadata metadataDoc `json:"metadata"`
	}{doc})
}
