package matching

// techVocabulary is used to extract skills from listing text when the
// source did not provide skill tags.
var techVocabulary = []string{
	"go", "golang", "rust", "java", "kotlin", "scala", "python", "ruby", "php", "perl",
	"c", "c++", "c#", ".net", "swift", "objective-c", "dart", "elixir", "erlang", "haskell",
	"javascript", "typescript", "node.js", "deno", "react", "react native", "next.js", "vue",
	"nuxt", "angular", "svelte", "redux", "jquery", "html", "css", "sass", "tailwind",
	"express", "nestjs", "django", "flask", "fastapi", "rails", "spring", "spring boot",
	"laravel", "symfony", "graphql", "rest", "grpc", "websocket",
	"sql", "postgresql", "postgres", "mysql", "sqlite", "mongodb", "redis", "cassandra",
	"elasticsearch", "kafka", "rabbitmq", "dynamodb", "snowflake", "bigquery",
	"aws", "gcp", "azure", "docker", "kubernetes", "terraform", "ansible", "helm",
	"linux", "git", "ci/cd", "jenkins", "github actions",
	"pandas", "numpy", "pytorch", "tensorflow", "scikit-learn", "spark", "hadoop", "airflow",
	"machine learning", "deep learning", "nlp", "computer vision", "llm",
	"figma", "ui", "ux", "android", "ios", "flutter", "unity",
	"excel", "tableau", "power bi", "salesforce", "sap", "jira",
}

var experienceTerms = map[string][]string{
	"entry":  {"entry level", "entry-level", "junior", "graduate", "intern", "internship", "trainee", "fresher"},
	"mid":    {"mid level", "mid-level", "intermediate", "associate"},
	"senior": {"senior", "sr.", "experienced"},
	"lead":   {"lead", "principal", "staff", "head of", "architect"},
}

var locationSentinels = map[string]struct{}{
	"":                   {},
	"-":                  {},
	"n/a":                {},
	"na":                 {},
	"not specified":      {},
	"unspecified":        {},
	"unknown":            {},
	"various":            {},
	"multiple locations": {},
	"tbd":                {},
}

var remoteTerms = []string{"remote", "anywhere", "work from home", "wfh", "distributed", "worldwide"}

// countries maps recognizable spellings to a canonical name. Two-letter
// codes are omitted except where they are unambiguous in job locations.
var countries = map[string]string{
	"pakistan":             "Pakistan",
	"india":                "India",
	"bangladesh":           "Bangladesh",
	"sri lanka":            "Sri Lanka",
	"nepal":                "Nepal",
	"indonesia":            "Indonesia",
	"malaysia":             "Malaysia",
	"singapore":            "Singapore",
	"philippines":          "Philippines",
	"vietnam":              "Vietnam",
	"viet nam":             "Vietnam",
	"thailand":             "Thailand",
	"china":                "China",
	"hong kong":            "Hong Kong",
	"taiwan":               "Taiwan",
	"japan":                "Japan",
	"south korea":          "South Korea",
	"korea":                "South Korea",
	"australia":            "Australia",
	"new zealand":          "New Zealand",
	"united arab emirates": "United Arab Emirates",
	"uae":                  "United Arab Emirates",
	"saudi arabia":         "Saudi Arabia",
	"qatar":                "Qatar",
	"egypt":                "Egypt",
	"nigeria":              "Nigeria",
	"kenya":                "Kenya",
	"south africa":         "South Africa",
	"turkey":               "Turkey",
	"israel":               "Israel",
	"united kingdom":       "United Kingdom",
	"uk":                   "United Kingdom",
	"england":              "United Kingdom",
	"ireland":              "Ireland",
	"germany":              "Germany",
	"deutschland":          "Germany",
	"france":               "France",
	"spain":                "Spain",
	"portugal":             "Portugal",
	"italy":                "Italy",
	"netherlands":          "Netherlands",
	"belgium":              "Belgium",
	"switzerland":          "Switzerland",
	"austria":              "Austria",
	"poland":               "Poland",
	"sweden":               "Sweden",
	"norway":               "Norway",
	"denmark":              "Denmark",
	"finland":              "Finland",
	"romania":              "Romania",
	"ukraine":              "Ukraine",
	"united states":        "United States",
	"usa":                  "United States",
	"u.s.a.":               "United States",
	"canada":               "Canada",
	"mexico":               "Mexico",
	"brazil":               "Brazil",
	"argentina":            "Argentina",
	"chile":                "Chile",
	"colombia":             "Colombia",
}

// categoryStopWords are role words too generic to establish a category match.
var categoryStopWords = map[string]struct{}{
	"developer": {}, "developers": {}, "development": {}, "engineer": {}, "engineering": {},
	"manager": {}, "management": {}, "specialist": {}, "senior": {}, "junior": {},
	"lead": {}, "assistant": {}, "associate": {}, "staff": {}, "other": {}, "others": {},
	"general": {}, "services": {}, "service": {}, "jobs": {}, "work": {}, "role": {},
	"team": {}, "officer": {}, "consultant": {}, "executive": {}, "professional": {},
	"worker": {}, "expert": {}, "intern": {},
}

var tokenStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "you": {}, "your": {}, "our": {},
	"are": {}, "will": {}, "this": {}, "that": {}, "from": {}, "have": {}, "has": {},
	"who": {}, "all": {}, "can": {}, "not": {}, "but": {}, "their": {}, "they": {},
	"about": {}, "into": {}, "join": {}, "work": {}, "team": {}, "role": {},
	"years": {}, "year": {}, "experience": {}, "job": {}, "company": {},
}
