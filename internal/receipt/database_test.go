package receipt

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/billrecon/internal/bill"
)

func storedBill(id, vendor string, day int, total string) *Bill {
	date := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &Bill{
		ID: id,
		NormalizedBill: bill.NormalizedBill{
			VendorName:   vendor,
			VendorKey:    bill.CanonicalKey(vendor),
			PurchaseDate: &date,
			TotalAmount:  bill.Some(decimal.RequireFromString(total)),
			Currency:     "USD",
		},
		Filename:     id + ".jpg",
		ContentType:  "image/jpeg",
		DocumentHash: "hash-" + id,
		CreatedAt:    date,
		UpdatedAt:    date,
	}
}

var _ = Describe("BoltDB", func() {
	var (
		db  *BoltDB
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveBill and GetBill", func() {
		It("round-trips a bill with exact amounts", func() {
			Expect(db.SaveBill(storedBill("a", "Walmart", 15, "18.06"))).To(Succeed())

			got, err := db.GetBill("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.VendorName).To(Equal("Walmart"))
			Expect(got.TotalAmount.Valid).To(BeTrue())
			Expect(got.TotalAmount.Decimal.Equal(decimal.RequireFromString("18.06"))).To(BeTrue())
			Expect(got.PurchaseDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))).To(BeTrue())
		})

		It("requires an id", func() {
			Expect(db.SaveBill(&Bill{})).NotTo(Succeed())
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := db.GetBill("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ListBills", func() {
		It("returns an empty slice for an empty database", func() {
			bills, err := db.ListBills()
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).NotTo(BeNil())
			Expect(bills).To(BeEmpty())
		})

		It("orders newest first", func() {
			Expect(db.SaveBill(storedBill("old", "Walmart", 1, "5.00"))).To(Succeed())
			Expect(db.SaveBill(storedBill("new", "Walmart", 20, "5.00"))).To(Succeed())

			bills, err := db.ListBills()
			Expect(err).NotTo(HaveOccurred())
			Expect(bills).To(HaveLen(2))
			Expect(bills[0].ID).To(Equal("new"))
		})
	})

	Describe("FindByVendorDate", func() {
		BeforeEach(func() {
			Expect(db.SaveBill(storedBill("a", "Walmart", 15, "18.06"))).To(Succeed())
			Expect(db.SaveBill(storedBill("b", "WALMART", 15, "3.00"))).To(Succeed())
			Expect(db.SaveBill(storedBill("c", "Walmart", 16, "18.06"))).To(Succeed())
			Expect(db.SaveBill(storedBill("d", "DMart", 15, "18.06"))).To(Succeed())
		})

		It("returns only bills for that vendor key and day", func() {
			found, err := db.FindByVendorDate(ctx, "WALMART", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(ConsistOf(
				HaveField("ID", "a"),
				HaveField("ID", "b"),
			))
		})

		It("summarises the stored bill", func() {
			found, err := db.FindByVendorDate(ctx, "DMART", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].VendorName).To(Equal("DMart"))
			Expect(found[0].TotalAmount.Equal(decimal.RequireFromString("18.06"))).To(BeTrue())
		})

		It("does not index bills without a date", func() {
			undated := storedBill("e", "Walmart", 15, "1.00")
			undated.PurchaseDate = nil
			Expect(db.SaveBill(undated)).To(Succeed())

			found, err := db.FindByVendorDate(ctx, "WALMART", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
		})

		It("moves the index entry when a bill is re-saved with a new date", func() {
			moved := storedBill("a", "Walmart", 17, "18.06")
			Expect(db.SaveBill(moved)).To(Succeed())

			found, err := db.FindByVendorDate(ctx, "WALMART", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(ConsistOf(HaveField("ID", "b")))
		})

		It("honours a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := db.FindByVendorDate(cancelled, "WALMART", time.Now())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	Describe("FindByHash", func() {
		It("finds the bill saved from a document", func() {
			Expect(db.SaveBill(storedBill("a", "Walmart", 15, "18.06"))).To(Succeed())

			got, err := db.FindByHash("hash-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("a"))
		})

		It("returns ErrNotFound for unknown documents", func() {
			_, err := db.FindByHash("nope")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("DeleteBill", func() {
		BeforeEach(func() {
			Expect(db.SaveBill(storedBill("a", "Walmart", 15, "18.06"))).To(Succeed())
		})

		It("removes the bill and its index entries", func() {
			Expect(db.DeleteBill("a")).To(Succeed())

			_, err := db.GetBill("a")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

			_, err = db.FindByHash("hash-a")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

			found, err := db.FindByVendorDate(ctx, "WALMART", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeEmpty())
		})

		It("returns ErrNotFound for unknown ids", func() {
			Expect(errors.Is(db.DeleteBill("missing"), ErrNotFound)).To(BeTrue())
		})
	})
})
