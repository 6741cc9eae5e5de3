package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHumanName(t *testing.T) {
	tests := []struct {
		in   string
		want HumanName
	}{
		{"", HumanName{}},
		{"Cher", HumanName{FirstName: "Cher"}},
		{"Ada Lovelace", HumanName{FirstName: "Ada", LastName: "Lovelace"}},
		{"  Ada   King  Lovelace ", HumanName{FirstName: "Ada", Initials: "King", LastName: "Lovelace"}},
		{"Dr. Grace Hopper", HumanName{Salutation: "Dr.", FirstName: "Grace", LastName: "Hopper"}},
		{"Martin Luther King Jr.", HumanName{FirstName: "Martin", Initials: "Luther", LastName: "King", Suffix: "Jr."}},
		{"Martin Luther King, Jr.", HumanName{FirstName: "Martin", Initials: "Luther", LastName: "King", Suffix: "Jr."}},
		{"Lovelace, Ada", HumanName{FirstName: "Ada", LastName: "Lovelace"}},
		{"Hopper, Grace B.", HumanName{FirstName: "Grace", Initials: "B.", LastName: "Hopper"}},
		{"Ludwig van Beethoven", HumanName{FirstName: "Ludwig", LastName: "van Beethoven"}},
		{"Juan de la Cruz", HumanName{FirstName: "Juan", LastName: "de la Cruz"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHumanName(tt.in))
		})
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ada-lovelace", Slugify("Ada Lovelace"))
	assert.Equal(t, "jose-alvarez", Slugify("  José   Álvarez! "))
	assert.Equal(t, "okta-00u1abc", Slugify("okta-00u1ABC"))
	assert.Equal(t, "", Slugify("!!!"))
}
