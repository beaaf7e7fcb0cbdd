package index

import (
	"path/filepath"
	"strings"

	"github.com/meghashyamc/homeindex/db"
)

// fileCategory is the classification of one extension.
type fileCategory struct {
	fileType db.FileType
	isText   bool
}

// extensionCategories maps lower-case extensions (without dot) to a category.
var extensionCategories = map[string]fileCategory{}

func init() {
	register := func(fileType db.FileType, isText bool, extensions ...string) {
		for _, ext := range extensions {
			extensionCategories[ext] = fileCategory{fileType: fileType, isText: isText}
		}
	}

	register(db.FileTypeCode, true,
		"go", "js", "jsx", "mjs", "cjs", "ts", "tsx", "py", "pyi", "rs", "java", "kt", "kts",
		"c", "h", "cpp", "cc", "cxx", "hpp", "hxx", "cs", "swift", "m", "mm", "dart", "rb",
		"php", "sh", "bash", "zsh", "fish", "ps1", "html", "htm", "css", "scss", "sass", "less",
		"sql", "graphql", "gql", "proto", "lua", "r", "scala", "ex", "exs", "erl", "hs", "zig",
		"vue", "svelte", "pl", "groovy", "clj", "elm", "ml", "fs", "jl", "nim", "v", "asm")

	register(db.FileTypeDocumentation, true,
		"md", "markdown", "mdx", "txt", "rst", "adoc", "asciidoc", "org", "tex")
	register(db.FileTypeDocumentation, false,
		"pdf", "doc", "docx", "rtf", "pages", "epub", "odt")

	register(db.FileTypeConfiguration, true,
		"json", "jsonc", "yaml", "yml", "toml", "xml", "ini", "cfg", "conf", "config", "env",
		"properties", "plist", "lock", "gradle", "tf", "tfvars", "csv", "tsv")

	register(db.FileTypeImage, false,
		"png", "jpg", "jpeg", "gif", "bmp", "tiff", "tif", "webp", "heic", "heif", "ico",
		"svg", "raw", "psd")

	register(db.FileTypeVideo, false,
		"mp4", "mov", "avi", "mkv", "webm", "m4v", "wmv", "flv", "mpeg", "mpg")

	register(db.FileTypeAudio, false,
		"mp3", "wav", "aac", "flac", "ogg", "m4a", "wma", "aiff", "opus")
}

// Classify maps path to a file type from its extension, case-insensitively.
// Unknown or missing extensions are FileTypeOther and not text-based.
func Classify(path string) (db.FileType, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if category, ok := extensionCategories[ext]; ok {
		return category.fileType, category.isText
	}

	return db.FileTypeOther, false
}
