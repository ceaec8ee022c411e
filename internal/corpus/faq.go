package corpus

import "fmt"

// FAQKind selects one of the built-in suggested question lists.
type FAQKind string

const (
	// FAQConstitution lists general questions about the constitution.
	FAQConstitution FAQKind = "constitution"
	// FAQAmendment lists questions about individual amendment acts.
	FAQAmendment FAQKind = "amendment"
)

var constitutionFAQ = []string{
	"What are the fundamental rights provided by the Indian Constitution?",
	"What is the Preamble to the Indian Constitution, and what does it signify?",
	"How does the Indian Constitution define the territories of India?",
	"What provisions does the Indian Constitution make regarding citizenship?",
	"What are the Directive Principles of State Policy in the Indian Constitution?",
	"What is the amendment process in the Indian Constitution?",
	"How is the President of India elected, and what are the President's powers and duties?",
	"What are the emergency provisions stated in the Indian Constitution?",
	"What is the significance of the Ninth Schedule in the Indian Constitution?",
	"How are the states formed or reorganized under the Indian Constitution?",
}

var amendmentFAQ = []string{
	`What were the key changes introduced by the 42nd Amendment Act of 1976, and why is it often referred to as the "Mini-Constitution"?`,
	"How did the 44th Amendment Act of 1978 alter the provisions related to the declaration of Emergency in India?",
	"What was the significance of the 73rd Amendment Act of 1992 in strengthening local governance in India?",
	"How did the 101st Amendment Act of 2016 transform India's taxation system with the introduction of the Goods and Services Tax (GST)?",
	"What were the objectives and outcomes of the 24th Amendment Act of 1971 in response to the Golak Nath case?",
	"How did the 86th Amendment Act of 2002 impact the right to education in India?",
	"What changes were brought about by the 52nd Amendment Act of 1985, commonly known as the Anti-Defection Law?",
	"How did the 61st Amendment Act of 1988 lower the voting age in India, and what was its significance?",
	"What were the key provisions of the 97th Amendment Act of 2011 related to cooperative societies?",
	"How did the 54th Amendment Act of 1986 revise the salaries of the President, Vice-President, and Governors, and what was the rationale behind it?",
}

// FAQ returns a copy of the suggested questions for kind. An empty kind
// returns the constitution list.
func FAQ(kind FAQKind) ([]string, error) {
	var src []string
	switch kind {
	case FAQConstitution, "":
		src = constitutionFAQ
	case FAQAmendment:
		src = amendmentFAQ
	default:
		return nil, fmt.Errorf("corpus: unknown faq kind %q", kind)
	}
	out := make([]string, len(src))
	copy(out, src)
	return out, nil
}
