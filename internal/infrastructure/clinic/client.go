package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/config"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB max response

// Pet is a pet record as the clinic-data service ships it
type Pet struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Species string `json:"species"`
	Breed   string `json:"breed"`
	OwnerID string `json:"ownerId"`
}

// Owner is a pet owner record from the clinic-data service
type Owner struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// DisplayName composes the owner's display name
func (o Owner) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(o.FirstName) + " " + strings.TrimSpace(o.LastName))
}

// Veterinarian is a staff record from the clinic-data service
type Veterinarian struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName prefers the explicit name, then composes "Dr. First Last"
func (v Veterinarian) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	composed := strings.TrimSpace(strings.TrimSpace(v.FirstName) + " " + strings.TrimSpace(v.LastName))
	if composed != "" {
		return "Dr. " + composed
	}
	return ""
}

// Client talks to the clinic-data service over HTTP. It is used to enrich
// invoices with pet, owner and veterinarian details and to pull legacy
// invoice exports during sync.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a clinic-data service client from configuration
func NewClient(cfg *config.ClinicConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetPet fetches a pet by id
func (c *Client) GetPet(ctx context.Context, id string) (*Pet, error) {
	var pet Pet
	if err := c.getJSON(ctx, "/pets/"+url.PathEscape(id), &pet); err != nil {
		return nil, err
	}
	return &pet, nil
}

// GetOwner fetches an owner by id
func (c *Client) GetOwner(ctx context.Context, id string) (*Owner, error) {
	var owner Owner
	if err := c.getJSON(ctx, "/owners/"+url.PathEscape(id), &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

// GetVeterinarian fetches a veterinarian by id
func (c *Client) GetVeterinarian(ctx context.Context, id string) (*Veterinarian, error) {
	var vet Veterinarian
	if err := c.getJSON(ctx, "/veterinarians/"+url.PathEscape(id), &vet); err != nil {
		return nil, err
	}
	return &vet, nil
}

// FetchLegacyInvoices pulls the legacy invoice export. Records come back
// loosely typed and must pass through the normalizer before use.
func (c *Client) FetchLegacyInvoices(ctx context.Context) ([]billing.RawInvoiceRecord, error) {
	var records []billing.RawInvoiceRecord
	if err := c.getJSON(ctx, "/exports/invoices", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build clinic request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.NewDomainError(shared.ErrPersistenceUnavailable.Code,
			fmt.Sprintf("clinic service unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return shared.NewDomainError(shared.ErrPersistenceUnavailable.Code,
			fmt.Sprintf("failed to read clinic response: %v", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case resp.StatusCode >= 500:
		return shared.NewDomainError(shared.ErrPersistenceUnavailable.Code,
			fmt.Sprintf("clinic service returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("clinic service returned unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return shared.NewMalformedRecordError(fmt.Sprintf("undecodable clinic response for %s: %v", path, err))
	}
	return nil
}

// Ping checks that the clinic service answers at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("clinic service returned %d", resp.StatusCode)
	}
	return nil
}
