package memoscmder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/api"
	"github.com/papercomputeco/voicenotes/pkg/memo"
)

func TestMemos(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memos Command Suite")
}

var _ = Describe("memos command", func() {
	It("binds the api target flag", func() {
		cmd := NewMemosCmd()
		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("status")).NotTo(BeNil())
	})

	It("formats a memo with a flattened, truncated transcript", func() {
		line := formatMemo(&memo.Memo{
			ID:         "m1",
			Timestamp:  time.Now(),
			Transcript: "first line\n\n" + strings.Repeat("x", 100),
			Status:     memo.StatusCompleted,
		})
		Expect(line).To(ContainSubstring("m1"))
		Expect(line).To(ContainSubstring("first line"))
		Expect(line).NotTo(ContainSubstring("\n"))
		Expect(line).To(ContainSubstring("..."))
	})

	It("lists memos from the API and rejects unknown statuses", func() {
		var query string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			_ = json.NewEncoder(w).Encode(api.MemoListResponse{Count: 0, Memos: []*memo.Memo{}})
		}))
		defer server.Close()

		c := &memosCommander{apiTarget: server.URL, status: "failed"}
		Expect(c.run(context.Background())).To(Succeed())
		Expect(query).To(Equal("status=failed"))

		c.status = "lost"
		Expect(c.run(context.Background())).To(MatchError(ContainSubstring("unknown status")))
	})
})
