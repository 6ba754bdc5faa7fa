package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-analyzer/internal/receipt"
)

// scriptedRecognizer returns one transcript per call, in order
type scriptedRecognizer struct {
	transcripts []string
}

func (s *scriptedRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	text := s.transcripts[0]
	s.transcripts = s.transcripts[1:]
	return text, nil
}

func (s *scriptedRecognizer) Close() error {
	return nil
}

func photo() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 250, G: 250, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

func upload(url, filename string, data []byte) map[string]string {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	resp, err := http.Post(url+"/api/receipts", writer.FormDataContentType(), body)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusCreated))

	var created map[string]string
	Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
	return created
}

func getJSON(url string, v any) {
	resp, err := http.Get(url)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

func integrationBehaviors(open func(path string) (receipt.DB, error)) {
	var (
		db       receipt.DB
		server   *receipt.Server
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		var err error
		db, err = open(filepath.Join(GinkgoT().TempDir(), "receipts.db"))
		Expect(err).NotTo(HaveOccurred())

		recognizer := &scriptedRecognizer{transcripts: []string{
			"green grocer\n12/03/2024\nSUBTOTAL 5.00\nTOTAL 12.50\n",
			"corner pharmacy\n2024-03-20\nAMOUNT DUE 42,10\n",
		}}
		service := receipt.NewService(db, recognizer)
		server = receipt.NewServer(service, receipt.BasicAuth{})
		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	It("uploads receipts and serves them back", func() {
		ghServer.AppendHandlers(
			server.ServeHTTP, // first upload
			server.ServeHTTP, // second upload
			server.ServeHTTP, // list
			server.ServeHTTP, // search
			server.ServeHTTP, // get
			server.ServeHTTP, // export
		)

		first := upload(ghServer.URL(), "grocer.jpg", photo())
		Expect(first["vendor"]).To(Equal("Green Grocer"))
		Expect(first["amount"]).To(Equal("12.50"))
		Expect(first["date"]).To(Equal("2024-03-12"))

		second := upload(ghServer.URL(), "pharmacy.JPEG", photo())
		Expect(second["amount"]).To(Equal("42.10"))
		Expect(second["date"]).To(Equal("2024-03-20"))
		Expect(second["id"]).NotTo(Equal(first["id"]))

		var all []map[string]string
		getJSON(ghServer.URL()+"/api/receipts", &all)
		Expect(all).To(HaveLen(2))

		var found []map[string]string
		getJSON(ghServer.URL()+"/api/receipts/search?vendor=Pharmacy&amount_min=40", &found)
		Expect(found).To(HaveLen(1))
		Expect(found[0]["id"]).To(Equal(second["id"]))

		var one map[string]string
		getJSON(ghServer.URL()+"/api/receipts/"+first["id"], &one)
		Expect(one["vendor"]).To(Equal("Green Grocer"))

		resp, err := http.Get(ghServer.URL() + "/api/receipts/export")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		csv, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(csv)).To(ContainSubstring("Green Grocer,2024-03-12,12.50"))
		Expect(string(csv)).To(ContainSubstring("Corner Pharmacy,2024-03-20,42.10"))
	})
}

var _ = Describe("Integration", func() {
	Context("with BoltDB", func() {
		integrationBehaviors(func(path string) (receipt.DB, error) {
			return receipt.NewBoltDB(path)
		})
	})

	Context("with SQLite", func() {
		integrationBehaviors(func(path string) (receipt.DB, error) {
			return receipt.NewSQLiteDB(path)
		})
	})
})
