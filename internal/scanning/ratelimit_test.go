package scanning

import (
	"context"
	"errors"
	"image"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingRecognizer returns a fixed transcript and counts calls
type countingRecognizer struct {
	calls  int
	closed bool
}

func (c *countingRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	c.calls++
	return "TOTAL 1.00", nil
}

func (c *countingRecognizer) Close() error {
	c.closed = true
	return nil
}

var _ = Describe("RateLimited", func() {
	var (
		next    *countingRecognizer
		limited *RateLimited
		img     image.Image
	)

	BeforeEach(func() {
		next = &countingRecognizer{}
		// one call per hour: only the burst is available during the test
		limited = NewRateLimited(next, 1.0/3600, 1)
		img = image.NewGray(image.Rect(0, 0, 1, 1))
	})

	It("should delegate while tokens are available", func() {
		text, err := limited.Recognize(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("TOTAL 1.00"))
		Expect(next.calls).To(Equal(1))
	})

	It("should stop waiting when the context expires", func() {
		_, err := limited.Recognize(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = limited.Recognize(ctx, img)
		Expect(err).To(HaveOccurred())
		Expect(next.calls).To(Equal(1))
	})

	It("should honour an already cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := limited.Recognize(ctx, img)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(next.calls).To(Equal(0))
	})

	It("should close the wrapped recognizer", func() {
		Expect(limited.Close()).To(Succeed())
		Expect(next.closed).To(BeTrue())
	})
})
