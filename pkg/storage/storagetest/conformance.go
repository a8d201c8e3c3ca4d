// Package storagetest holds the behaviour every storage.Driver must share,
// registered as ginkgo tests by each driver's suite.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/storage"
)

// DescribeDriver registers driver conformance tests. newDriver is called
// before each test and must return an empty driver.
func DescribeDriver(name string, newDriver func(ctx context.Context) storage.Driver) bool {
	return Describe(name+" conformance", func() {
		var (
			ctx    context.Context
			driver storage.Driver
			now    time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver(ctx)
			now = time.Date(2026, 5, 4, 10, 30, 0, 123456789, time.UTC)
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("stores and retrieves a memo", func() {
			m := memo.New("segments/a.wav", now)
			m.Transcript = "hello"
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())

			got, err := driver.Get(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(m.ID))
			Expect(got.Timestamp).To(BeTemporally("==", now))
			Expect(got.AudioRef).To(Equal(m.AudioRef))
			Expect(got.Transcript).To(Equal("hello"))
			Expect(got.Status).To(Equal(memo.StatusPending))
		})

		It("is idempotent for an identical memo", func() {
			m := memo.New("segments/a.wav", now)
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())

			memos, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(memos).To(HaveLen(1))
		})

		It("replaces a memo with the same id", func() {
			m := memo.New("segments/a.wav", now)
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())

			updated := m.Clone()
			updated.AudioRef = "segments/b.wav"
			updated.Transcript = "extended"
			updated.Status = memo.StatusCompleted
			updated.Touch(now.Add(time.Minute))
			Expect(driver.InsertOrReplace(ctx, updated)).To(Succeed())

			got, err := driver.Get(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.AudioRef).To(Equal(updated.AudioRef))
			Expect(got.Transcript).To(Equal("extended"))
			Expect(got.Status).To(Equal(memo.StatusCompleted))
			Expect(got.Timestamp).To(BeTemporally("==", now.Add(time.Minute)))
		})

		It("keeps the offset of an untranscribed delta", func() {
			m := memo.New("segments/merged.wav", now)
			m.Transcript = "hello"
			m.DeltaOffset = 1500 * time.Millisecond
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())

			got, err := driver.Get(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.DeltaOffset).To(Equal(1500 * time.Millisecond))

			done := got.Clone()
			done.DeltaOffset = 0
			done.Touch(now.Add(time.Second))
			Expect(driver.InsertOrReplace(ctx, done)).To(Succeed())

			removed, err := driver.Remove(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed.DeltaOffset).To(BeZero())
		})

		It("returns NotFoundError for a missing memo", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("lists every memo", func() {
			for i := range 3 {
				Expect(driver.InsertOrReplace(ctx, memo.New("r", now.Add(time.Duration(i)*time.Second)))).To(Succeed())
			}

			memos, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(memos).To(HaveLen(3))
		})

		It("removes a memo and returns it", func() {
			m := memo.New("segments/a.wav", now)
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())

			removed, err := driver.Remove(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed.AudioRef).To(Equal(m.AudioRef))

			_, err = driver.Get(ctx, m.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())

			_, err = driver.Remove(ctx, m.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("hands out copies", func() {
			m := memo.New("segments/a.wav", now)
			Expect(driver.InsertOrReplace(ctx, m)).To(Succeed())
			m.Transcript = "mutated after insert"

			got, err := driver.Get(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Transcript).To(BeEmpty())

			got.Transcript = "mutated after get"
			again, err := driver.Get(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Transcript).To(BeEmpty())
		})
	})
}
