package seed

import (
	"strings"

	"pulse/internal/models"
	"pulse/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds realistic post and comment content.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory returns a factory. The same seed yields the same content.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// PostInput builds a create request for owner expiring within maxMinutes.
func (f *Factory) PostInput(owner uint, maxMinutes int) service.CreatePostInput {
	if maxMinutes < 5 {
		maxMinutes = 5
	}
	return service.CreatePostInput{
		OwnerID:           owner,
		Title:             strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), "."),
		Message:           f.faker.Paragraph(1, f.faker.Number(2, 4), f.faker.Number(6, 14), " "),
		Topics:            f.Topics(),
		ExpirationMinutes: f.faker.Number(5, maxMinutes),
	}
}

// Topics picks one or two distinct topics.
func (f *Factory) Topics() []string {
	all := make([]string, len(models.AllTopics))
	for i, t := range models.AllTopics {
		all[i] = string(t)
	}
	f.faker.ShuffleStrings(all)
	return all[:f.faker.Number(1, 2)]
}

func (f *Factory) Comment() string {
	return f.faker.Sentence(f.faker.Number(3, 16))
}

// Pick returns a random user id in [1, n] other than exclude.
func (f *Factory) Pick(n int, exclude uint) uint {
	for {
		id := uint(f.faker.Number(1, n))
		if id != exclude || n == 1 {
			return id
		}
	}
}

// Chance reports true with probability p.
func (f *Factory) Chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}
