package receipt

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func multipartUpload(filename, contentType string, data []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(mw.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/api/bills", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var _ = Describe("Server", func() {
	var (
		db      *mockDB
		storage *mockStorage
		scanner *mockScanner
		server  *Server
		rec     *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = &mockScanner{result: inrExtraction()}
		server = NewServerWithMux(newTestService(db, scanner, storage), "1.2.3", http.NewServeMux())
		rec = httptest.NewRecorder()
	})

	serve := func(req *http.Request) {
		rec = httptest.NewRecorder()
		server.ServeHTTP(rec, req)
	}

	decode := func(v any) {
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	Describe("GET /healthz", func() {
		It("reports the version", func() {
			serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"version":"1.2.3"`))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			serve(httptest.NewRequest(http.MethodOptions, "/api/bills", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("sets headers on errors too", func() {
			serve(httptest.NewRequest(http.MethodGet, "/api/bills/missing", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("POST /api/bills", func() {
		When("the bill is new", func() {
			It("returns 201 with the saved bill", func() {
				serve(multipartUpload("bill.jpg", "image/jpeg", []byte("scan")))
				Expect(rec.Code).To(Equal(http.StatusCreated))

				var out Outcome
				decode(&out)
				Expect(out.Status).To(Equal(Saved))
				Expect(out.Bill.VendorName).To(Equal("DMart"))
				Expect(out.Bill.TotalAmount.Decimal.String()).To(Equal("18.06"))
			})
		})

		When("the document was already processed", func() {
			It("returns 200", func() {
				serve(multipartUpload("bill.jpg", "image/jpeg", []byte("scan")))
				serve(multipartUpload("bill.jpg", "image/jpeg", []byte("scan")))
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Body.String()).To(ContainSubstring(`"already_processed"`))
			})
		})

		When("the invoice is already stored", func() {
			It("returns 409", func() {
				scanner.result.Fields["invoice_number"] = "DM/778"
				serve(multipartUpload("a.jpg", "image/jpeg", []byte("one")))
				serve(multipartUpload("b.jpg", "image/jpeg", []byte("two")))
				Expect(rec.Code).To(Equal(http.StatusConflict))
				Expect(rec.Body.String()).To(ContainSubstring(`"hard"`))
			})
		})

		When("the currency is unsupported", func() {
			It("returns 422 with the fatal error", func() {
				scanner.result.Fields["currency"] = "XYZ"
				serve(multipartUpload("a.jpg", "image/jpeg", []byte("one")))
				Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
				Expect(rec.Body.String()).To(ContainSubstring(`"unsupported_currency"`))
			})
		})

		When("no file is attached", func() {
			It("returns 400", func() {
				req := httptest.NewRequest(http.MethodPost, "/api/bills", strings.NewReader("nope"))
				req.Header.Set("Content-Type", "text/plain")
				serve(req)
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("the part has no content type", func() {
			It("infers it from the extension", func() {
				serve(multipartUpload("scan.PDF", "", []byte("%PDF-1.4")))
				Expect(rec.Code).To(Equal(http.StatusCreated))

				var out Outcome
				decode(&out)
				Expect(out.Bill.ContentType).To(Equal("application/pdf"))
			})
		})
	})

	Describe("POST /api/bills/reconcile", func() {
		It("returns the pipeline result without storing", func() {
			body := `{"ai": {"vendor_name": "Cafe", "purchase_date": "2024-01-15", "currency": "EUR",
				"total_amount": 10.00, "subtotal": 9.00, "tax_amount": 1.00}}`
			serve(httptest.NewRequest(http.MethodPost, "/api/bills/reconcile", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"model_used":"tax_exclusive"`))
			Expect(rec.Body.String()).To(ContainSubstring(`"total_amount":"10.8"`))
			Expect(db.bills).To(BeEmpty())
		})

		It("returns 422 for a fatal run", func() {
			body := `{"ai": {"currency": "XYZ", "total_amount": 10}}`
			serve(httptest.NewRequest(http.MethodPost, "/api/bills/reconcile", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		It("rejects malformed bodies", func() {
			serve(httptest.NewRequest(http.MethodPost, "/api/bills/reconcile", strings.NewReader("{")))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("reading and deleting bills", func() {
		var id string

		BeforeEach(func() {
			serve(multipartUpload("bill.png", "image/png", []byte("png bytes")))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			var out Outcome
			decode(&out)
			id = out.Bill.ID
		})

		It("lists bills", func() {
			serve(httptest.NewRequest(http.MethodGet, "/api/bills", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var bills []Bill
			decode(&bills)
			Expect(bills).To(HaveLen(1))
		})

		It("gets a bill", func() {
			serve(httptest.NewRequest(http.MethodGet, "/api/bills/"+id, nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var b Bill
			decode(&b)
			Expect(b.ID).To(Equal(id))
			Expect(b.OriginalCurrency).To(Equal("INR"))
		})

		It("serves the original document", func() {
			serve(httptest.NewRequest(http.MethodGet, "/api/bills/"+id+"/file", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(rec.Body.String()).To(Equal("png bytes"))
		})

		It("deletes a bill", func() {
			serve(httptest.NewRequest(http.MethodDelete, "/api/bills/"+id, nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			serve(httptest.NewRequest(http.MethodGet, "/api/bills/"+id, nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 404 when deleting an unknown bill", func() {
			serve(httptest.NewRequest(http.MethodDelete, "/api/bills/missing", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})
