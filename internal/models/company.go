package models

// CompanyInfo is the seller block printed on invoices and emails.
type CompanyInfo struct {
	Name    string   `json:"name" toml:"name"`
	Address string   `json:"address" toml:"address"`
	Phone   string   `json:"phone" toml:"phone"`
	Email   string   `json:"email" toml:"email"`
	Website string   `json:"website,omitempty" toml:"website"`
	TaxID   string   `json:"taxId,omitempty" toml:"tax_id"`
	Terms   []string `json:"terms,omitempty" toml:"terms"`
}

// DefaultCompanyInfo is used when no profile is configured.
func DefaultCompanyInfo() CompanyInfo {
	return CompanyInfo{
		Name:    "BillDesk Traders",
		Address: "123 Business Street, Tech City, TC 12345",
		Phone:   "+1 (555) 123-4567",
		Email:   "info@billdesk.example",
		Website: "www.billdesk.example",
		Terms: []string{
			"Payment is due within 30 days of the invoice date.",
			"Late payments may be subject to a 1.5% monthly service charge.",
			"Goods once sold will not be taken back or exchanged.",
			"Please report any discrepancies within 7 days of receipt.",
			"This is a computer generated invoice and does not require a signature.",
		},
	}
}
