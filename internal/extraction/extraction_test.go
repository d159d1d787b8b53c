package extraction

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExtraction(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Extraction Suite")
}

var _ = Describe("Fields", func() {
	Describe("Canonical", func() {
		It("renames top-level and line item aliases", func() {
			f := Fields{
				"vendor": "Cafe",
				"total":  "12.00",
				"items": []any{
					map[string]any{"item_name": "Tea", "qty": 2, "price": "3.00", "item_total": "6.00"},
				},
			}.Canonical()

			Expect(f).To(HaveKeyWithValue(FieldVendorName, "Cafe"))
			Expect(f).To(HaveKeyWithValue(FieldTotalAmount, "12.00"))
			Expect(f).NotTo(HaveKey("items"))
			items := f[FieldLineItems].([]any)
			Expect(items).To(HaveLen(1))
			Expect(items[0]).To(Equal(map[string]any{
				ItemDescription: "Tea",
				ItemQuantity:    2,
				ItemUnitPrice:   "3.00",
				ItemTotalPrice:  "6.00",
			}))
		})

		It("does not let an alias overwrite a canonical key", func() {
			f := Fields{"total_amount": "10.00", "total": "99.00"}.Canonical()
			Expect(f).To(HaveKeyWithValue(FieldTotalAmount, "10.00"))
		})
	})

	Describe("Candidate", func() {
		It("skips nil values", func() {
			_, ok := Fields{FieldCurrency: nil}.Candidate(FieldCurrency, TierAI)
			Expect(ok).To(BeFalse())
		})

		It("skips blank strings", func() {
			_, ok := Fields{FieldInvoiceNumber: "  "}.Candidate(FieldInvoiceNumber, TierAI)
			Expect(ok).To(BeFalse())
		})

		It("tags the value with its tier", func() {
			c, ok := Fields{FieldCurrency: "INR"}.Candidate(FieldCurrency, TierRegex)
			Expect(ok).To(BeTrue())
			Expect(c).To(Equal(Candidate{Field: FieldCurrency, Raw: "INR", Tier: TierRegex}))
		})
	})
})

var _ = Describe("ExtractGeneric", func() {
	var (
		text   string
		fields Fields
	)

	JustBeforeEach(func() {
		fields = ExtractGeneric(text)
	})

	When("the receipt is a typical Indian bill", func() {
		BeforeEach(func() {
			text = `SHARMA STORES
Invoice No: INV-2024-001
Date: 15/01/2024 Time: 18:45
1 Basmati Rice 2 450.00
2 Toor Dal 1 600.00
Sub Total: 1500.00
GST 0.00
Grand Total: ₹1,500.00
Paid by UPI`
		})

		It("finds the invoice number", func() {
			Expect(fields).To(HaveKeyWithValue(FieldInvoiceNumber, "INV-2024-001"))
		})

		It("finds the date and time", func() {
			Expect(fields).To(HaveKeyWithValue(FieldPurchaseDate, "15/01/2024"))
			Expect(fields).To(HaveKeyWithValue(FieldPurchaseTime, "18:45"))
		})

		It("detects the currency by symbol", func() {
			Expect(fields).To(HaveKeyWithValue(FieldCurrency, "INR"))
		})

		It("detects the payment method", func() {
			Expect(fields).To(HaveKeyWithValue(FieldPaymentMethod, "UPI"))
		})

		It("reads the labelled amounts without confusing subtotal and total", func() {
			Expect(fields).To(HaveKeyWithValue(FieldSubtotal, "1500.00"))
			Expect(fields).To(HaveKeyWithValue(FieldTaxAmount, "0.00"))
			Expect(fields).To(HaveKeyWithValue(FieldTotalAmount, "1,500.00"))
		})

		It("parses line items with computed totals", func() {
			items := fields[FieldLineItems].([]any)
			Expect(items).To(HaveLen(2))
			Expect(items[0]).To(HaveKeyWithValue(ItemDescription, "Basmati Rice"))
			Expect(items[0]).To(HaveKeyWithValue(ItemTotalPrice, "900"))
			Expect(items[1]).To(HaveKeyWithValue(ItemTotalPrice, "600"))
		})

		It("never sets the vendor", func() {
			Expect(fields).NotTo(HaveKey(FieldVendorName))
		})
	})

	When("only a spaced SUB TOTAL label exists", func() {
		BeforeEach(func() {
			text = "SUB TOTAL 40.00"
		})

		It("does not report it as the total", func() {
			Expect(fields).To(HaveKeyWithValue(FieldSubtotal, "40.00"))
			Expect(fields).NotTo(HaveKey(FieldTotalAmount))
		})
	})

	When("a RECEIPT header is followed by a word", func() {
		BeforeEach(func() {
			text = "RECEIPT\nTOTAL 5.00"
		})

		It("does not take the word as an invoice number", func() {
			Expect(fields).NotTo(HaveKey(FieldInvoiceNumber))
			Expect(fields).To(HaveKeyWithValue(FieldTotalAmount, "5.00"))
		})
	})

	When("the text is blank", func() {
		BeforeEach(func() {
			text = "   "
		})

		It("returns no fields", func() {
			Expect(fields).To(BeEmpty())
		})
	})
})

var _ = Describe("Templates", func() {
	var (
		templates *Templates
		dir       string
		err       error
	)

	BeforeEach(func() {
		dir = ""
	})

	JustBeforeEach(func() {
		templates, err = LoadTemplates(dir)
	})

	It("loads the built-in templates", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(templates.Len()).To(BeNumerically(">=", 2))
	})

	It("resolves aliases regardless of punctuation and case", func() {
		Expect(templates.Find("WAL-MART")).NotTo(BeNil())
		Expect(templates.Find("walmart").VendorKey).To(Equal("WALMART"))
		Expect(templates.Find("Unknown Shop")).To(BeNil())
	})

	Describe("Match", func() {
		It("prefers the vendor hint", func() {
			t := templates.Match("nothing useful here", "D-Mart")
			Expect(t).NotTo(BeNil())
			Expect(t.VendorKey).To(Equal("DMART"))
		})

		It("falls back to keywords in the raw text", func() {
			t := templates.Match("WAL-MART SUPERCENTER\nSAVE MONEY. LIVE BETTER", "")
			Expect(t).NotTo(BeNil())
			Expect(t.VendorKey).To(Equal("WALMART"))
		})

		It("returns nil when nothing matches", func() {
			Expect(templates.Match("CORNER CAFE", "Corner Cafe")).To(BeNil())
		})
	})

	Describe("Apply", func() {
		It("extracts Walmart fields and line items", func() {
			text := `Walmart
SAVE MONEY. LIVE BETTER.
GV 2% MILK 007874213011 F 3.48 N
BANANAS 000000004011 F 1.52 N
SUBTOTAL 5.00
TAX 1 7.000 % 0.35
TOTAL 5.35
01/15/24 14:32:10
TC# 1234 5678 9012 3456 7890`
			fields, t := templates.Extract(text, "")
			Expect(t).NotTo(BeNil())
			Expect(fields).To(HaveKeyWithValue(FieldVendorName, "Walmart"))
			Expect(fields).To(HaveKeyWithValue(FieldCurrency, "USD"))
			Expect(fields).To(HaveKeyWithValue(FieldSubtotal, "5.00"))
			Expect(fields).To(HaveKeyWithValue(FieldTaxAmount, "0.35"))
			Expect(fields).To(HaveKeyWithValue(FieldTotalAmount, "5.35"))
			Expect(fields).To(HaveKeyWithValue(FieldPurchaseDate, "01/15/24"))
			Expect(fields).To(HaveKeyWithValue(FieldPurchaseTime, "14:32:10"))

			items := fields[FieldLineItems].([]any)
			Expect(items).To(HaveLen(2))
			Expect(items[0]).To(HaveKeyWithValue(ItemDescription, "GV 2% MILK"))
			Expect(items[0]).To(HaveKeyWithValue(ItemTotalPrice, "3.48"))
		})

		It("maps indexed line groups between markers", func() {
			text := `DMart
Avenue Supermarts Ltd
Bill No: DM/778
Date: 15-01-2024
PARTICULARS QTY RATE AMOUNT
1 Sugar 2 45.00 90.00
2 Salt 1 20.00 20.00
TOTAL 110.00
NET AMOUNT 110.00`
			fields, t := templates.Extract(text, "")
			Expect(t.VendorKey).To(Equal("DMART"))
			Expect(fields).To(HaveKeyWithValue(FieldInvoiceNumber, "DM/778"))
			Expect(fields).To(HaveKeyWithValue(FieldTotalAmount, "110.00"))

			items := fields[FieldLineItems].([]any)
			Expect(items).To(HaveLen(2))
			Expect(items[1]).To(Equal(map[string]any{
				ItemDescription: "Salt",
				ItemQuantity:    "1",
				ItemUnitPrice:   "20.00",
				ItemTotalPrice:  "20.00",
			}))
		})

		It("omits fields the template cannot find", func() {
			fields, _ := templates.Extract("WALMART", "")
			Expect(fields).NotTo(HaveKey(FieldTotalAmount))
			Expect(fields).NotTo(HaveKey(FieldLineItems))
		})
	})

	When("a directory overrides a built-in template", func() {
		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "walmart.json"), []byte(`{
				"vendor_key": "WALMART",
				"aliases": ["Wally World"],
				"static_fields": {"vendor_name": "Walmart Inc"}
			}`), 0644)).To(Succeed())
		})

		It("uses the directory version", func() {
			Expect(err).NotTo(HaveOccurred())
			fields, _ := templates.Extract("", "Wally World")
			Expect(fields).To(HaveKeyWithValue(FieldVendorName, "Walmart Inc"))
		})
	})

	When("a template fails the schema", func() {
		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"aliases": ["x"]}`), 0644)).To(Succeed())
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("bad.json")))
		})
	})

	When("a template has an invalid pattern", func() {
		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{
				"vendor_key": "BROKEN",
				"fields": {"subtotal": {"patterns": ["(unclosed"]}}
			}`), 0644)).To(Succeed())
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("HeaderGuesser", func() {
	var guesser HeaderGuesser

	It("picks the shortest clean header line", func() {
		text := `Fresh Mart Superstore
Fresh Mart
123 Main Street
Tel: 555-123-4567
TAX INVOICE
Date: 15/01/2024`
		Expect(guesser.GuessVendor(text)).To(Equal("Fresh Mart"))
	})

	It("skips amounts, phone numbers and boilerplate", func() {
		text := `RECEIPT
*** 12.50 ***
Phone 555 123 4567
THANK YOU`
		Expect(guesser.GuessVendor(text)).To(BeEmpty())
	})

	It("only looks at the header", func() {
		g := HeaderGuesser{MaxLines: 1}
		Expect(g.GuessVendor("12.00\nCorner Cafe")).To(BeEmpty())
	})
})
