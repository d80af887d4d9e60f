// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package analysis

import (
	"strings"
	"time"

	"github.com/poiesic/mailkb/core"
)

// ComposeText renders an email as plain text: subject, sender, date, body,
// and the extracted text of each attachment that has any.
func ComposeText(content *core.EmailContent) string {
	if content == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(content.Subject)
	b.WriteString("\nFrom: ")
	b.WriteString(formatSender(content.SenderName, content.SenderAddress))
	b.WriteString("\nDate: ")
	if !content.ReceivedAt.IsZero() {
		b.WriteString(content.ReceivedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\nBody:\n")
	b.WriteString(content.Body)

	header := false
	for _, a := range content.Attachments {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		if !header {
			b.WriteString("\n\nAttachments:")
			header = true
		}
		b.WriteString("\n\n")
		b.WriteString(a.Name)
		b.WriteString(":\n")
		b.WriteString(a.Text)
	}
	return b.String()
}

// IndexText is the text embedded for an approved email: the composed email
// followed by the classifier's summary and key points.
func IndexText(review *core.EmailReview) string {
	if review == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(ComposeText(&review.Content))
	if review.Analysis.Summary != "" {
		b.WriteString("\n\nSummary: ")
		b.WriteString(review.Analysis.Summary)
	}
	if len(review.Analysis.KeyPoints) > 0 {
		b.WriteString("\nKey points:")
		for _, p := range review.Analysis.KeyPoints {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	return b.String()
}

func formatSender(name, address string) string {
	switch {
	case name == "":
		return address
	case address == "":
		return name
	default:
		return name + " <" + address + ">"
	}
}
