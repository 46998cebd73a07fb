package schema

import (
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
)

// Verdict is the model's decision on a proposed story expansion.
type Verdict struct {
	IsPermissible bool     `json:"is_permissible" jsonschema_description:"Whether the expansion keeps the story consistent and appropriate for children"`
	Reasoning     string   `json:"reasoning" jsonschema_description:"Short explanation of the decision"`
	Suggestions   []string `json:"suggestions" jsonschema_description:"Concrete ideas to improve or fix the proposal"`
}

// Entity is a named span found in story text. Labels follow the usual NER
// tag set: PERSON, GPE, LOC, FAC, DATE, TIME.
type Entity struct {
	Text  string `json:"text" jsonschema_description:"Exact surface text of the entity as written"`
	Label string `json:"label" jsonschema:"enum=PERSON,enum=GPE,enum=LOC,enum=FAC,enum=DATE,enum=TIME" jsonschema_description:"Entity category"`
}

type EntityList struct {
	Entities []Entity `json:"entities" jsonschema_description:"Entities in order of appearance"`
}

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

var (
	VerdictSchema    = generateSchema[Verdict]()
	EntityListSchema = generateSchema[EntityList]()
)

func VerdictResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return responseFormat("expansion_verdict", "Permissibility decision for a proposed story expansion", VerdictSchema)
}

func EntitiesResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return responseFormat("story_entities", "Named entities found in a children's story page", EntityListSchema)
}

func responseFormat(name, description string, schema any) openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}
