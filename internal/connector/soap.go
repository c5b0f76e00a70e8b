package connector

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/opengov-stack/adjudex/internal/domain"
)

// soapConnector speaks an XML envelope with an optional WS-Security
// UsernameToken header, the shape legacy department systems expect.
type soapConnector struct {
	cfg    *domain.ConnectorConfig
	client *http.Client
}

func newSOAPConnector(cfg *domain.ConnectorConfig, client *http.Client) *soapConnector {
	return &soapConnector{cfg: cfg, client: client}
}

type soapEnvelope struct {
	XMLName xml.Name    `xml:"soapenv:Envelope"`
	NS      string      `xml:"xmlns:soapenv,attr"`
	Header  *soapHeader `xml:"soapenv:Header,omitempty"`
	Body    soapBody    `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security *wsSecurity `xml:"wsse:Security,omitempty"`
}

type wsSecurity struct {
	NS    string        `xml:"xmlns:wsse,attr"`
	Token usernameToken `xml:"wsse:UsernameToken"`
}

type usernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Request *submitApplicationRequest `xml:"SubmitApplicationRequest"`
}

type submitApplicationRequest struct {
	RequestID     string           `xml:"RequestId"`
	ApplicationID string           `xml:"ApplicationId"`
	SchemeCode    string           `xml:"SchemeCode"`
	SubmittedAt   string           `xml:"SubmittedAt"`
	Applicant     []applicantField `xml:"Applicant>Field"`
}

type applicantField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

func (c *soapConnector) FormatPayload(req *domain.SubmissionRequest) ([]byte, error) {
	env := soapEnvelope{
		NS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body: soapBody{
			Request: &submitApplicationRequest{
				RequestID:     req.RequestID,
				ApplicationID: req.ApplicationID,
				SchemeCode:    req.SchemeCode,
				SubmittedAt:   req.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z"),
				Applicant:     applicantFields(req.Applicant),
			},
		},
	}

	if c.cfg.Auth == domain.AuthWSS {
		env.Header = &soapHeader{
			Security: &wsSecurity{
				NS: "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd",
				Token: usernameToken{
					Username: c.cfg.AuthConfig.Username,
					Password: c.cfg.AuthConfig.Password,
				},
			},
		}
	}

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// applicantFields flattens the evaluation context into name/value
// elements, sorted so retried payloads are byte-identical.
func applicantFields(ec domain.EvaluationContext) []applicantField {
	fields := make([]applicantField, 0, len(ec))
	for name, value := range ec {
		fields = append(fields, applicantField{Name: name, Value: fmt.Sprintf("%v", value)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

func (c *soapConnector) Send(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.cfg), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "SubmitApplication")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

type soapResponseEnvelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Response *struct {
			ReferenceNumber string `xml:"ReferenceNumber"`
			Status          string `xml:"Status"`
			Message         string `xml:"Message"`
		} `xml:"SubmitApplicationResponse"`
	} `xml:"Body"`
}

func (c *soapConnector) ParseResponse(resp *Response) (*domain.SubmissionResult, error) {
	var env soapResponseEnvelope
	if err := xml.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	if fault := env.Body.Fault; fault != nil {
		status := domain.SubmissionError
		// Client faults are payload problems, never retried.
		if strings.Contains(fault.Code, "Client") {
			status = domain.SubmissionValidationError
		}
		return &domain.SubmissionResult{
			Status:  status,
			Message: fault.String,
		}, nil
	}

	r := env.Body.Response
	if r == nil {
		return nil, fmt.Errorf("envelope carries neither fault nor response")
	}
	if !strings.EqualFold(r.Status, "ACCEPTED") {
		return &domain.SubmissionResult{
			Status:  domain.SubmissionError,
			Message: r.Message,
		}, nil
	}
	return &domain.SubmissionResult{
		Success:       true,
		DepartmentRef: r.ReferenceNumber,
		Status:        domain.SubmissionSuccess,
		Message:       r.Message,
	}, nil
}
