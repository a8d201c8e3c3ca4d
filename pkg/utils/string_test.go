package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Truncate", func() {
	It("leaves short transcripts alone", func() {
		Expect(Truncate("buy milk", 10)).To(Equal("buy milk"))
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("cuts long transcripts with an ellipsis", func() {
		Expect(Truncate("remember to call the dentist", 11)).To(Equal("remember to..."))
	})

	It("folds line breaks into single spaces", func() {
		Expect(Truncate("first line\n\n  second", 40)).To(Equal("first line second"))
	})

	It("counts runes rather than bytes", func() {
		Expect(Truncate("café crème brûlée", 4)).To(Equal("café..."))
	})
})

var _ = Describe("UserAgent", func() {
	It("names the build", func() {
		Expect(UserAgent()).To(Equal("voicenotes/dev (HEAD)"))
	})
})
