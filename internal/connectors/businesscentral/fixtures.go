package businesscentral

import (
	"github.com/erpbridge/erpbridge/internal/connectors/registry"
	"github.com/erpbridge/erpbridge/internal/store"
)

// Fixtures returns the demo dataset served when the local instance cannot be reached. Records use
// the same field names as the live OData pages.
func Fixtures() map[string][]registry.Record {
	return map[string][]registry.Record{
		store.ModuleLeads: {
			{"No": "C00010", "Name": "Adatum Corporation", "E_Mail": "robert.townes@adatum.example", "Phone_No": "+1 425 555 0100", "Blocked": " ", "Last_Date_Modified": "2024-03-01"},
			{"No": "C00020", "Name": "Trey Research", "E_Mail": "helen.ray@treyresearch.example", "Phone_No": "+1 425 555 0101", "Blocked": " ", "Last_Date_Modified": "2024-03-04"},
			{"No": "C00030", "Name": "School of Fine Art", "E_Mail": "meagan.bond@fineart.example", "Phone_No": "+1 425 555 0102", "Blocked": "Ship", "Last_Date_Modified": "2024-03-09"},
		},
		store.ModuleContacts: {
			{"No": "CT000001", "Name": "Robert Townes", "E_Mail": "robert.townes@adatum.example", "Phone_No": "+1 425 555 0110", "Company_Name": "Adatum Corporation", "Job_Title": "Purchasing Manager"},
			{"No": "CT000002", "Name": "Helen Ray", "E_Mail": "helen.ray@treyresearch.example", "Phone_No": "+1 425 555 0111", "Company_Name": "Trey Research", "Job_Title": "Owner"},
			{"No": "CT000003", "Name": "Meagan Bond", "E_Mail": "meagan.bond@fineart.example", "Phone_No": "+1 425 555 0112", "Company_Name": "School of Fine Art", "Job_Title": "Administrator"},
		},
		store.ModuleFinance: {
			{"No": "103001", "Sell_to_Customer_Name": "Adatum Corporation", "Amount": 12450.0, "Currency_Code": "USD", "Status": "Open", "Posting_Date": "2024-03-02"},
			{"No": "103002", "Sell_to_Customer_Name": "Trey Research", "Amount": 3180.5, "Currency_Code": "USD", "Status": "Released", "Posting_Date": "2024-03-05"},
			{"No": "103003", "Sell_to_Customer_Name": "School of Fine Art", "Amount": 870.0, "Currency_Code": "EUR", "Status": "Open", "Posting_Date": "2024-03-10"},
		},
	}
}
