// Package catalog describes the document-processing services customers can
// order.
package catalog

// Service is one orderable service. Price is in whole Kenyan shillings.
type Service struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	EstimatedTime string   `json:"estimatedTime"`
	Requirements  []string `json:"requirements"`
	Active        bool     `json:"active"`
}

// Seed returns the default service catalog, used by cmd/seed-services to
// populate a fresh database.
func Seed() []Service {
	return []Service{
		{
			ID: "kra-pin", Title: "KRA PIN Registration", Category: "government",
			Description: "Registration of a new KRA PIN certificate for individuals.",
			Price: 200, EstimatedTime: "1-2 business days", Active: true,
			Requirements: []string{"National ID number", "Email address", "Phone number"},
		},
		{
			ID: "nhif", Title: "NHIF Registration", Category: "government",
			Description: "NHIF member registration for individuals and dependents.",
			Price: 300, EstimatedTime: "2-3 business days", Active: true,
			Requirements: []string{"National ID number", "Passport photo", "Dependent details"},
		},
		{
			ID: "helb", Title: "HELB Application", Category: "education",
			Description: "First-time HELB loan application for students.",
			Price: 500, EstimatedTime: "3-5 business days", Active: true,
			Requirements: []string{"National ID number", "Admission letter", "Institution details"},
		},
		{
			ID: "business-reg", Title: "Business Registration", Category: "business",
			Description: "Business name registration with the registrar of companies.",
			Price: 1500, EstimatedTime: "5-7 business days", Active: true,
			Requirements: []string{"Proposed business names", "Owner ID number", "Business activity"},
		},
		{
			ID: "cv-writing", Title: "Professional CV Writing", Category: "documents",
			Description: "Professionally written and formatted curriculum vitae.",
			Price: 800, EstimatedTime: "2-3 business days", Active: true,
			Requirements: []string{"Work history", "Education background", "Target role"},
		},
		{
			ID: "good-conduct", Title: "Good Conduct Certificate", Category: "government",
			Description: "Police clearance certificate application and follow-up.",
			Price: 1050, EstimatedTime: "7-14 business days", Active: true,
			Requirements: []string{"National ID number", "Fingerprints appointment"},
		},
		{
			ID: "tax-returns", Title: "Tax Returns Filing", Category: "government",
			Description: "Annual individual tax return filing, including nil returns.",
			Price: 250, EstimatedTime: "1 business day", Active: true,
			Requirements: []string{"KRA PIN", "P9 form if employed"},
		},
	}
}
