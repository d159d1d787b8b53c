package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name string
			key  string
			err  error
		)

		JustBeforeEach(func() {
			key, err = storage.Save(name, []byte("test file content"))
		})

		When("the name starts with a hash", func() {
			BeforeEach(func() {
				name = "ab12cd_bill.jpg"
			})

			It("shards by the first two characters", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(key).To(Equal(filepath.Join("ab", "ab12cd_bill.jpg")))
				Expect(filepath.Join(tmpDir, "ab", "ab12cd_bill.jpg")).To(BeARegularFile())
			})

			It("leaves no temp files behind", func() {
				entries, err := os.ReadDir(filepath.Join(tmpDir, "ab"))
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the name is not hash-prefixed", func() {
			BeforeEach(func() {
				name = "receipt.png"
			})

			It("stores it at the top level", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(key).To(Equal("receipt.png"))
			})
		})

		When("the name tries to escape the directory", func() {
			BeforeEach(func() {
				name = "../../etc/passwd"
			})

			It("keeps only the base name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(key).To(Equal("passwd"))
				Expect(filepath.Join(tmpDir, "passwd")).To(BeARegularFile())
			})
		})
	})

	Describe("Get", func() {
		It("reads back what was saved", func() {
			key, err := storage.Save("ff00_doc.pdf", []byte("%PDF"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("%PDF")))
		})

		It("fails for missing keys", func() {
			_, err := storage.Get("nope.jpg")
			Expect(err).To(HaveOccurred())
		})

		It("rejects keys outside the base path", func() {
			_, err := storage.Get("../secret")
			Expect(err).To(MatchError(ContainSubstring("invalid storage key")))
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			key, err := storage.Save("doc.jpg", []byte("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete(key)).To(Succeed())
			Expect(filepath.Join(tmpDir, key)).NotTo(BeAnExistingFile())
		})

		It("ignores files that are already gone", func() {
			Expect(storage.Delete("gone.jpg")).To(Succeed())
		})
	})
})
