package moduleconfig

import (
	"maps"

	"github.com/erpbridge/erpbridge/internal/connectors/businesscentral"
	"github.com/erpbridge/erpbridge/internal/connectors/configstore"
	"github.com/erpbridge/erpbridge/internal/connectors/dynamics"
	"github.com/erpbridge/erpbridge/internal/connectors/sap"
	"github.com/erpbridge/erpbridge/internal/store"
)

// Default is one built-in module configuration.
type Default struct {
	DisplayName   string
	Endpoint      string
	FieldMappings map[string]string
	Filters       string
	SortOrder     int
}

// Canonical field names of the built-in modules. Every provider maps all of them.
var (
	LeadFields    = []string{"id", "name", "email", "company", "phone", "status", "createdAt"}
	ContactFields = []string{"id", "name", "email", "phone", "company", "title"}
	FinanceFields = []string{"id", "number", "customer", "amount", "currency", "status", "date"}
)

var defaults = map[string]map[string]Default{
	configstore.KindDynamics: {
		store.ModuleLeads: {
			DisplayName: "Leads",
			Endpoint:    dynamics.EndpointLeads,
			FieldMappings: map[string]string{
				"id":        "leadid",
				"name":      "fullname",
				"email":     "emailaddress1",
				"company":   "companyname",
				"phone":     "telephone1",
				"status":    "statuscode",
				"createdAt": "createdon",
			},
			SortOrder: 1,
		},
		store.ModuleContacts: {
			DisplayName: "Contacts",
			Endpoint:    dynamics.EndpointContacts,
			FieldMappings: map[string]string{
				"id":      "contactid",
				"name":    "fullname",
				"email":   "emailaddress1",
				"phone":   "telephone1",
				"company": "parentcustomerid_account.name",
				"title":   "jobtitle",
			},
			SortOrder: 2,
		},
		store.ModuleFinance: {
			DisplayName: "Invoices",
			Endpoint:    dynamics.EndpointFinance,
			FieldMappings: map[string]string{
				"id":       "invoiceid",
				"number":   "invoicenumber",
				"customer": "customerid_account.name",
				"amount":   "totalamount",
				"currency": "transactioncurrencyid.isocurrencycode",
				"status":   "statecode",
				"date":     "createdon",
			},
			SortOrder: 3,
		},
	},
	configstore.KindSAP: {
		store.ModuleLeads: {
			DisplayName: "Business Partners",
			Endpoint:    sap.EndpointLeads,
			FieldMappings: map[string]string{
				"id":        "BusinessPartner",
				"name":      "BusinessPartnerFullName",
				"email":     "",
				"company":   "OrganizationBPName1",
				"phone":     "",
				"status":    "BusinessPartnerIsBlocked",
				"createdAt": "CreationDate",
			},
			Filters:   "BusinessPartnerCategory eq '2'",
			SortOrder: 1,
		},
		store.ModuleContacts: {
			DisplayName: "Contact Persons",
			Endpoint:    sap.EndpointContacts,
			FieldMappings: map[string]string{
				"id":      "RelationshipNumber",
				"name":    "ContactPerson",
				"email":   "EmailAddress",
				"phone":   "PhoneNumber",
				"company": "BusinessPartnerCompany",
				"title":   "ContactPersonFunction",
			},
			SortOrder: 2,
		},
		store.ModuleFinance: {
			DisplayName: "Journal Entries",
			Endpoint:    sap.EndpointFinance,
			FieldMappings: map[string]string{
				"id":       "AccountingDocument",
				"number":   "AccountingDocument",
				"customer": "Customer",
				"amount":   "AmountInCompanyCodeCurrency",
				"currency": "CompanyCodeCurrency",
				"status":   "ClearingAccountingDocument",
				"date":     "PostingDate",
			},
			SortOrder: 3,
		},
	},
	configstore.KindBusinessCentral: {
		store.ModuleLeads: {
			DisplayName: "Customers",
			Endpoint:    businesscentral.EndpointLeads,
			FieldMappings: map[string]string{
				"id":        "No",
				"name":      "Name",
				"email":     "E_Mail",
				"company":   "Name",
				"phone":     "Phone_No",
				"status":    "Blocked",
				"createdAt": "Last_Date_Modified",
			},
			SortOrder: 1,
		},
		store.ModuleContacts: {
			DisplayName: "Contacts",
			Endpoint:    businesscentral.EndpointContacts,
			FieldMappings: map[string]string{
				"id":      "No",
				"name":    "Name",
				"email":   "E_Mail",
				"phone":   "Phone_No",
				"company": "Company_Name",
				"title":   "Job_Title",
			},
			SortOrder: 2,
		},
		store.ModuleFinance: {
			DisplayName: "Sales Invoices",
			Endpoint:    businesscentral.EndpointFinance,
			FieldMappings: map[string]string{
				"id":       "No",
				"number":   "No",
				"customer": "Sell_to_Customer_Name",
				"amount":   "Amount",
				"currency": "Currency_Code",
				"status":   "Status",
				"date":     "Posting_Date",
			},
			SortOrder: 3,
		},
	},
}

// Defaults returns the built-in configuration of one provider module.
func Defaults(provider, module string) (Default, bool) {
	d, ok := defaults[store.NormalizeKey(provider)][store.NormalizeKey(module)]
	if !ok {
		return Default{}, false
	}
	d.FieldMappings = maps.Clone(d.FieldMappings)
	return d, true
}

// DefaultProviders lists the providers with a built-in table.
func DefaultProviders() []string {
	return []string{configstore.KindDynamics, configstore.KindSAP, configstore.KindBusinessCentral}
}
