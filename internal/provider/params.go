package provider

import (
	"encoding/json"
	"fmt"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrInvalidParams is returned when a parameter bag does not fit its scan kind
var ErrInvalidParams = errors.New("invalid scan parameters")

var validate = validator.New()

// ToolParams is the typed parameter set of one scan kind
type ToolParams interface {
	// ToolParameters renders the parameters in the provider's tool_params form
	ToolParameters() map[string]interface{}
}

// PortScanParams configures a TCP/UDP port scan
type PortScanParams struct {
	ScanType    string `json:"scan_type" validate:"omitempty,oneof=top_100 top_1000 full custom"`
	Ports       string `json:"ports" validate:"required_if=ScanType custom"`
	Protocol    string `json:"protocol" validate:"omitempty,oneof=tcp udp"`
	ServiceScan bool   `json:"service_detection"`
}

func (p *PortScanParams) ToolParameters() map[string]interface{} {
	scanType := p.ScanType
	if scanType == "" {
		scanType = "top_100"
	}
	protocol := p.Protocol
	if protocol == "" {
		protocol = "tcp"
	}
	out := map[string]interface{}{
		"scan_type":         scanType,
		"protocol_type":     protocol,
		"service_detection": p.ServiceScan,
	}
	if p.Ports != "" {
		out["ports"] = p.Ports
	}
	return out
}

// WebsiteScanParams configures a website vulnerability scan
type WebsiteScanParams struct {
	ScanType      string `json:"scan_type" validate:"omitempty,oneof=light deep"`
	Authenticated bool   `json:"authenticated"`
	LoginURL      string `json:"login_url" validate:"omitempty,url"`
	Username      string `json:"username" validate:"required_with=Password"`
	Password      string `json:"password" validate:"required_with=Username"`
}

func (p *WebsiteScanParams) ToolParameters() map[string]interface{} {
	scanType := p.ScanType
	if scanType == "" {
		scanType = "light"
	}
	out := map[string]interface{}{"scan_type": scanType}
	if p.Authenticated {
		out["authentication"] = map[string]interface{}{
			"type":      "recorded",
			"login_url": p.LoginURL,
			"username":  p.Username,
			"password":  p.Password,
		}
	}
	return out
}

// SubdomainParams configures subdomain enumeration
type SubdomainParams struct {
	ScanType     string `json:"scan_type" validate:"omitempty,oneof=light deep"`
	WebDetails   bool   `json:"web_details"`
	WhoisDetails bool   `json:"whois_details"`
}

func (p *SubdomainParams) ToolParameters() map[string]interface{} {
	scanType := p.ScanType
	if scanType == "" {
		scanType = "light"
	}
	return map[string]interface{}{
		"scan_type":     scanType,
		"web_details":   p.WebDetails,
		"whois_details": p.WhoisDetails,
	}
}

// SSLScanParams configures an SSL/TLS inspection
type SSLScanParams struct {
	Port int `json:"port" validate:"omitempty,min=1,max=65535"`
}

func (p *SSLScanParams) ToolParameters() map[string]interface{} {
	port := p.Port
	if port == 0 {
		port = 443
	}
	return map[string]interface{}{"port": port}
}

// CMSScanParams configures the WordPress, Drupal, Joomla and SharePoint scanners
type CMSScanParams struct {
	ScanType string `json:"scan_type" validate:"omitempty,oneof=light deep"`
}

func (p *CMSScanParams) ToolParameters() map[string]interface{} {
	scanType := p.ScanType
	if scanType == "" {
		scanType = "light"
	}
	return map[string]interface{}{"scan_type": scanType}
}

// URLFuzzerParams configures URL fuzzing
type URLFuzzerParams struct {
	Wordlist   string   `json:"wordlist" validate:"omitempty,oneof=small medium large"`
	Extensions []string `json:"extensions" validate:"max=20,dive,alphanum"`
	MatchCodes []int    `json:"match_codes" validate:"dive,min=100,max=599"`
}

func (p *URLFuzzerParams) ToolParameters() map[string]interface{} {
	wordlist := p.Wordlist
	if wordlist == "" {
		wordlist = "small"
	}
	out := map[string]interface{}{"wordlist": wordlist}
	if len(p.Extensions) > 0 {
		out["extensions"] = p.Extensions
	}
	if len(p.MatchCodes) > 0 {
		out["match_codes"] = p.MatchCodes
	}
	return out
}

// NetworkScanParams configures a network vulnerability scan
type NetworkScanParams struct {
	Preset string `json:"preset" validate:"omitempty,oneof=light deep custom"`
	Ports  string `json:"ports" validate:"required_if=Preset custom"`
}

func (p *NetworkScanParams) ToolParameters() map[string]interface{} {
	preset := p.Preset
	if preset == "" {
		preset = "light"
	}
	out := map[string]interface{}{"preset": preset}
	if p.Ports != "" {
		out["ports"] = p.Ports
	}
	return out
}

// APIScanParams configures an API vulnerability scan
type APIScanParams struct {
	DefinitionURL string `json:"definition_url" validate:"omitempty,url"`
	Format        string `json:"format" validate:"omitempty,oneof=openapi postman"`
}

func (p *APIScanParams) ToolParameters() map[string]interface{} {
	format := p.Format
	if format == "" {
		format = "openapi"
	}
	out := map[string]interface{}{"format": format}
	if p.DefinitionURL != "" {
		out["definition_url"] = p.DefinitionURL
	}
	return out
}

// BasicParams is used by tools that take no options beyond the target
type BasicParams struct{}

func (p *BasicParams) ToolParameters() map[string]interface{} {
	return map[string]interface{}{}
}

// decodeParams fills dst from the parameter bag and validates it
func decodeParams(bag models.JSONMap, dst ToolParams) error {
	if len(bag) > 0 {
		raw, err := json.Marshal(bag)
		if err != nil {
			return errors.Wrap(ErrInvalidParams, err.Error())
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return errors.Wrap(ErrInvalidParams, err.Error())
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.Wrap(ErrInvalidParams, fmt.Sprintf("field %s failed %q", verrs[0].Field(), verrs[0].Tag()))
		}
		return errors.Wrap(ErrInvalidParams, err.Error())
	}
	return nil
}
