package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
)

// sslComponent is the affected component of every SSL finding
const sslComponent = "SSL/TLS Configuration"

var (
	highRiskPorts   = map[int]bool{22: true, 23: true, 445: true, 3389: true, 1433: true, 3306: true, 5432: true}
	mediumRiskPorts = map[int]bool{21: true, 25: true, 110: true, 143: true, 161: true, 389: true, 636: true}
)

// PortSeverity classifies an open port by the fixed port risk table
func PortSeverity(port int) models.Severity {
	switch {
	case highRiskPorts[port]:
		return models.SeverityHigh
	case mediumRiskPorts[port]:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// subdomain accepts either {"name": "..."} or a bare string
type subdomain struct {
	Name string `json:"name"`
	IP   string `json:"ip,omitempty"`
}

func (s *subdomain) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		s.Name = name
		return nil
	}
	type plain subdomain
	return json.Unmarshal(b, (*plain)(s))
}

type subdomainOutput struct {
	Subdomains []subdomain `json:"subdomains"`
}

func normalizeSubdomains(data json.RawMessage) ([]models.Finding, error) {
	var out subdomainOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(out.Subdomains))
	for _, sd := range out.Subdomains {
		if sd.Name == "" {
			continue
		}
		details := models.JSONMap{}
		if sd.IP != "" {
			details["ip"] = sd.IP
		}
		findings = append(findings, models.Finding{
			Type:              "subdomain",
			Title:             sd.Name,
			Description:       fmt.Sprintf("Discovered subdomain %s", sd.Name),
			Severity:          models.SeverityInfo,
			Details:           details,
			AffectedComponent: sd.Name,
		})
	}
	return findings, nil
}

type port struct {
	Port     int    `json:"port"`
	State    string `json:"state"`
	Protocol string `json:"protocol,omitempty"`
	Service  string `json:"service,omitempty"`
	Version  string `json:"version,omitempty"`
}

type portOutput struct {
	Host  string `json:"host,omitempty"`
	Ports []port `json:"ports"`
}

func normalizePorts(data json.RawMessage) ([]models.Finding, error) {
	var out portOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(out.Ports))
	for _, p := range out.Ports {
		if !strings.EqualFold(p.State, "open") {
			continue
		}
		protocol := p.Protocol
		if protocol == "" {
			protocol = "tcp"
		}
		title := fmt.Sprintf("Open port %d/%s", p.Port, protocol)
		if p.Service != "" {
			title += " (" + p.Service + ")"
		}
		component := fmt.Sprintf("%d/%s", p.Port, protocol)
		if out.Host != "" {
			component = out.Host + ":" + component
		}
		findings = append(findings, models.Finding{
			Type:     "open_port",
			Title:    title,
			Severity: PortSeverity(p.Port),
			Details: models.JSONMap{
				"port":     p.Port,
				"protocol": protocol,
				"service":  p.Service,
				"version":  p.Version,
			},
			AffectedComponent: component,
		})
	}
	return findings, nil
}

type vulnerability struct {
	Name           string      `json:"name"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Severity       *string     `json:"severity"`
	CVE            string      `json:"cve"`
	CVSS           *float64    `json:"cvss"`
	References     []string    `json:"references"`
	Recommendation string      `json:"recommendation"`
	URL            string      `json:"url"`
	Evidence       interface{} `json:"evidence,omitempty"`
}

func (v vulnerability) title() string {
	if v.Name != "" {
		return v.Name
	}
	if v.Title != "" {
		return v.Title
	}
	return "Unnamed vulnerability"
}

func (v vulnerability) severity() models.Severity {
	if v.Severity == nil {
		return models.SeverityInfo
	}
	return models.ParseSeverity(*v.Severity)
}

func (v vulnerability) finding(findingType, component string) models.Finding {
	f := models.Finding{
		Type:              findingType,
		Title:             v.title(),
		Description:       v.Description,
		Severity:          v.severity(),
		AffectedComponent: component,
		Remediation:       v.Recommendation,
		References:        models.StringArray(v.References),
		CVEID:             v.CVE,
		CVSSScore:         v.CVSS,
	}
	if v.Evidence != nil {
		f.Details = models.JSONMap{"evidence": v.Evidence}
	}
	return f
}

type vulnerabilityOutput struct {
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

func normalizeVulnerabilities(data json.RawMessage) ([]models.Finding, error) {
	var out vulnerabilityOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(out.Vulnerabilities))
	for _, v := range out.Vulnerabilities {
		findings = append(findings, v.finding("vulnerability", v.URL))
	}
	return findings, nil
}

type sslOutput struct {
	Issues []vulnerability `json:"issues"`
}

func normalizeSSL(data json.RawMessage) ([]models.Finding, error) {
	var out sslOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(out.Issues))
	for _, issue := range out.Issues {
		findings = append(findings, issue.finding("ssl_issue", sslComponent))
	}
	return findings, nil
}
