package seed

import (
	"strings"
	"testing"
)

const sampleDataset = `[
  {
    "extractedData": {
      "llmData": {
        "vendor": {"value": {
          "vendorName": {"value": "Acme GmbH"},
          "vendorTaxId": "DE123",
          "vendorAddress": {"value": "Berlin"}
        }},
        "customer": {"value": {"customerName": {"value": "Globex"}, "customerAddress": "Vienna"}},
        "invoice": {"value": {
          "invoiceId": {"value": "INV-1"},
          "invoiceDate": {"value": "2024-03"},
          "deliveryDate": {"value": "03.04.2024"}
        }},
        "summary": {"value": {
          "subTotal": {"value": 100},
          "totalTax": {"value": "19.00"},
          "invoiceTotal": {"value": 119.5},
          "currencySymbol": {"value": "EUR"}
        }},
        "payment": {"value": {"dueDate": {"value": "2024-04-15"}, "paymentTerms": "net 30"}},
        "lineItems": {"value": {"items": {"value": [
          {"description": {"value": "Widget"}, "quantity": {"value": 2}, "unitPrice": {"value": 50}, "totalPrice": 100, "vatRate": 19, "vatAmount": {"value": 19}},
          {"description": "Shipping", "quantity": "n/a"}
        ]}}}
      }
    }
  },
  {"extractedData": {"llmData": {}}},
  {"extractedData": {}},
  {
    "extractedData": {
      "llmData": {
        "vendor": {"vendorName": "Initech"},
        "invoice": {"invoiceDate": "2023"},
        "summary": "USD",
        "payment": {}
      }
    }
  }
]`

func TestDecodeUnwrapsValueObjects(t *testing.T) {
	docs, skipped, err := Decode(strings.NewReader(sampleDataset))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if skipped != 2 {
		t.Fatalf("Decode() skipped = %d, want 2", skipped)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}

	doc := docs[0]
	assertString(t, "vendor name", doc.Vendor.Name, "Acme GmbH")
	assertString(t, "vendor tax id", doc.Vendor.TaxID, "DE123")
	assertString(t, "customer address", doc.Customer.Address, "Vienna")
	assertString(t, "invoice id", doc.Invoice.InvoiceID, "INV-1")
	assertString(t, "invoice date", doc.Invoice.InvoiceDate, "2024-03-01")
	if doc.Invoice.DeliveryDate != nil {
		t.Fatalf("delivery date = %q, want nil", *doc.Invoice.DeliveryDate)
	}
	assertFloat(t, "sub total", doc.Invoice.SubTotal, 100)
	assertFloat(t, "total tax", doc.Invoice.TotalTax, 19)
	assertFloat(t, "invoice total", doc.Invoice.InvoiceTotal, 119.5)
	assertString(t, "currency", doc.Invoice.Currency, "EUR")

	if doc.Payment == nil {
		t.Fatal("expected payment")
	}
	assertString(t, "due date", doc.Payment.DueDate, "2024-04-15")
	assertString(t, "payment terms", doc.Payment.PaymentTerms, "net 30")
	if doc.Payment.BankAccountNumber != nil {
		t.Fatal("bank account should be nil")
	}

	if len(doc.LineItems) != 2 {
		t.Fatalf("len(LineItems) = %d, want 2", len(doc.LineItems))
	}
	assertString(t, "line description", doc.LineItems[0].Description, "Widget")
	assertFloat(t, "line quantity", doc.LineItems[0].Quantity, 2)
	assertFloat(t, "line total", doc.LineItems[0].TotalPrice, 100)
	assertFloat(t, "line vat", doc.LineItems[0].VATAmount, 19)
	if doc.LineItems[1].Quantity != nil {
		t.Fatal("non-numeric quantity should be nil")
	}
}

func TestDecodeHandlesUnwrappedBlocks(t *testing.T) {
	docs, _, err := Decode(strings.NewReader(sampleDataset))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	doc := docs[1]
	assertString(t, "vendor name", doc.Vendor.Name, "Initech")
	assertString(t, "invoice date", doc.Invoice.InvoiceDate, "2023-01-01")
	assertString(t, "currency", doc.Invoice.Currency, "USD")
	if doc.Customer.Name != nil {
		t.Fatal("missing customer should produce nil name")
	}
	if doc.Payment != nil {
		t.Fatal("empty payment block should be treated as absent")
	}
	if len(doc.LineItems) != 0 {
		t.Fatalf("LineItems = %+v", doc.LineItems)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, _, err := Decode(strings.NewReader(`{"not": "an array"}`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{in: "2024", want: "2024-01-01"},
		{in: "2024-07", want: "2024-07-01"},
		{in: "2024-07-19", want: "2024-07-19"},
		{in: "2024-13-01", want: ""},
		{in: "19.07.2024", want: ""},
		{in: "", want: ""},
		{in: nil, want: ""},
	}
	for _, tc := range cases {
		got := NormalizeDate(tc.in)
		if tc.want == "" {
			if got != nil {
				t.Fatalf("NormalizeDate(%v) = %q, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Fatalf("NormalizeDate(%v) = %v, want %q", tc.in, got, tc.want)
		}
	}
}

func assertString(t *testing.T, name string, got *string, want string) {
	t.Helper()
	if got == nil || *got != want {
		t.Fatalf("%s = %v, want %q", name, got, want)
	}
}

func assertFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil || *got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
