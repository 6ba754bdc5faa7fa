package scanning

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// testImage draws a white w x h canvas with a black pixel in the top-left corner
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(0, 0, color.Black)
	return img
}

func encodeTestPNG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func encodeTestJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})).To(Succeed())
	return buf.Bytes()
}

// withOrientation inserts a minimal EXIF APP1 segment carrying the
// orientation tag right after the JPEG SOI marker.
func withOrientation(jpegData []byte, orientation uint16) []byte {
	var exif bytes.Buffer
	exif.WriteString("Exif\x00\x00")
	exif.WriteString("MM\x00\x2a")                        // big-endian TIFF header
	binary.Write(&exif, binary.BigEndian, uint32(8))      // offset to IFD0
	binary.Write(&exif, binary.BigEndian, uint16(1))      // one entry
	binary.Write(&exif, binary.BigEndian, uint16(0x0112)) // orientation tag
	binary.Write(&exif, binary.BigEndian, uint16(3))      // SHORT
	binary.Write(&exif, binary.BigEndian, uint32(1))      // count
	binary.Write(&exif, binary.BigEndian, orientation)
	binary.Write(&exif, binary.BigEndian, uint16(0)) // padding
	binary.Write(&exif, binary.BigEndian, uint32(0)) // no next IFD

	var out bytes.Buffer
	out.Write(jpegData[:2]) // SOI
	out.Write([]byte{0xff, 0xe1})
	binary.Write(&out, binary.BigEndian, uint16(exif.Len()+2))
	out.Write(exif.Bytes())
	out.Write(jpegData[2:])
	return out.Bytes()
}

// twoPagePDF builds a minimal PDF whose pages have different shapes:
// a 100x200 portrait first page and a 300x50 landscape second page.
func twoPagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 200] /Resources << >> >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 50] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var _ = Describe("Normalize", func() {
	var (
		data   []byte
		kind   ContentKind
		bitmap *image.Gray
		err    error
	)

	BeforeEach(func() {
		kind = KindImage
	})

	JustBeforeEach(func() {
		bitmap, err = Normalize(data, kind)
	})

	When("the input is a PNG", func() {
		BeforeEach(func() {
			data = encodeTestPNG(testImage(8, 4))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep the dimensions", func() {
			Expect(bitmap.Bounds()).To(Equal(image.Rect(0, 0, 8, 4)))
		})

		It("should produce single-channel intensities", func() {
			Expect(bitmap.GrayAt(0, 0).Y).To(Equal(uint8(0)))
			Expect(bitmap.GrayAt(5, 2).Y).To(Equal(uint8(255)))
		})
	})

	When("the input is a JPEG without orientation metadata", func() {
		BeforeEach(func() {
			data = encodeTestJPEG(testImage(40, 20))
		})

		It("should keep the dimensions", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bitmap.Bounds().Dx()).To(Equal(40))
			Expect(bitmap.Bounds().Dy()).To(Equal(20))
		})
	})

	When("the JPEG says it was captured rotated by 90 degrees", func() {
		BeforeEach(func() {
			data = withOrientation(encodeTestJPEG(testImage(40, 20)), 6)
		})

		It("should rotate it upright", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bitmap.Bounds().Dx()).To(Equal(20))
			Expect(bitmap.Bounds().Dy()).To(Equal(40))
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
		})

		It("should return ErrUnreadableInput", func() {
			Expect(err).To(MatchError(ErrUnreadableInput))
			Expect(bitmap).To(BeNil())
		})
	})

	When("the input is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("should return ErrUnreadableInput", func() {
			Expect(err).To(MatchError(ErrUnreadableInput))
		})
	})

	When("the input is a multi-page PDF", func() {
		BeforeEach(func() {
			kind = KindDocument
			data = twoPagePDF()
		})

		It("should render a bitmap", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bitmap.Bounds().Min).To(Equal(image.Point{}))
			Expect(bitmap.Bounds().Dx()).To(BeNumerically(">", 0))
		})

		It("should use the first page only", func() {
			Expect(err).NotTo(HaveOccurred())
			b := bitmap.Bounds()
			// page 1 is twice as tall as it is wide; page 2 is six times wider than tall
			Expect(b.Dy()).To(BeNumerically(">", b.Dx()))
			Expect(float64(b.Dy()) / float64(b.Dx())).To(BeNumerically("~", 2.0, 0.01))
		})
	})

	When("HEIC-branded bytes are not a decodable HEIC image", func() {
		BeforeEach(func() {
			data = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")
		})

		It("should route them to the HEIC decoder and return ErrUnreadableInput", func() {
			Expect(err).To(MatchError(ErrUnreadableInput))
			Expect(err.Error()).To(ContainSubstring("HEIC"))
		})
	})

	When("a document is not a valid PDF", func() {
		BeforeEach(func() {
			kind = KindDocument
			data = []byte("%PDF-garbage")
		})

		It("should return ErrUnreadableInput", func() {
			Expect(err).To(MatchError(ErrUnreadableInput))
		})
	})
})

var _ = Describe("toGray", func() {
	It("should re-anchor sub-images at the origin", func() {
		src := testImage(10, 10).SubImage(image.Rect(2, 3, 6, 9))
		gray := toGray(src)
		Expect(gray.Bounds()).To(Equal(image.Rect(0, 0, 4, 6)))
		Expect(gray.GrayAt(0, 0).Y).To(Equal(uint8(255)))
	})
})

var _ = Describe("KindFor", func() {
	DescribeTable("content kinds",
		func(ext, contentType string, expected ContentKind) {
			Expect(KindFor(ext, contentType)).To(Equal(expected))
		},
		Entry("declared PDF", ".pdf", "application/pdf", KindDocument),
		Entry("PDF with parameters", ".pdf", "application/pdf; charset=binary", KindDocument),
		Entry("PDF without a declared type", ".PDF", "", KindDocument),
		Entry("PDF sent as octet-stream", ".pdf", "application/octet-stream", KindDocument),
		Entry("JPEG", ".jpg", "image/jpeg", KindImage),
		Entry("PNG without a declared type", ".png", "", KindImage),
		Entry("declared image wins over extension", ".pdf", "image/png", KindImage),
	)
})

var _ = Describe("isHEICFormat", func() {
	It("should detect HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"))).To(BeTrue())
	})

	It("should reject other containers", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
