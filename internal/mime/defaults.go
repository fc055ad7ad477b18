package mime

// DefaultTable is the built-in group/extension/mime table. Several entries
// carry the alias that http.DetectContentType reports for the format.
func DefaultTable() Table {
	return Table{
		GroupImage: {
			"bmp":   {"image/bmp", "image/x-ms-bmp"},
			"gif":   {"image/gif"},
			"jpe":   {"image/jpeg"},
			"jpg":   {"image/jpeg", "image/pjpeg"},
			"jpeg":  {"image/jpeg", "image/pjpeg"},
			"pjpeg": {"image/pjpeg", "image/jpeg"},
			"svg":   {"image/svg+xml", "text/xml"},
			"svgz":  {"image/svg+xml"},
			"tif":   {"image/tiff"},
			"tiff":  {"image/tiff"},
			"ico":   {"image/vnd.microsoft.icon", "image/x-icon"},
			"png":   {"image/png", "image/x-png"},
			"xpng":  {"image/x-png"},
			"webp":  {"image/webp"},
		},
		GroupText: {
			"txt":   {"text/plain"},
			"asc":   {"text/plain"},
			"css":   {"text/css", "text/plain"},
			"csv":   {"text/csv", "text/plain"},
			"htm":   {"text/html"},
			"html":  {"text/html"},
			"stm":   {"text/html"},
			"rtf":   {"text/rtf"},
			"rtx":   {"text/richtext"},
			"sgm":   {"text/sgml"},
			"sgml":  {"text/sgml"},
			"tsv":   {"text/tab-separated-values", "text/plain"},
			"tpl":   {"text/template"},
			"xml":   {"text/xml"},
			"js":    {"text/javascript", "text/plain"},
			"xhtml": {"application/xhtml+xml"},
			"xht":   {"application/xhtml+xml"},
			"json":  {"application/json", "text/plain"},
		},
		GroupArchive: {
			"gz":   {"application/x-gzip"},
			"gtar": {"application/x-gtar"},
			"z":    {"application/x-compress"},
			"tgz":  {"application/x-compressed", "application/x-gzip"},
			"zip":  {"application/zip", "application/x-zip-compressed"},
			"rar":  {"application/x-rar-compressed"},
			"rev":  {"application/x-rar-compressed"},
			"tar":  {"application/x-tar"},
			"7z":   {"application/x-7z-compressed"},
		},
		GroupAudio: {
			"aif":  {"audio/x-aiff", "audio/aiff"},
			"aifc": {"audio/x-aiff", "audio/aiff"},
			"aiff": {"audio/x-aiff", "audio/aiff"},
			"au":   {"audio/basic"},
			"kar":  {"audio/midi"},
			"mid":  {"audio/midi"},
			"midi": {"audio/midi"},
			"mp2":  {"audio/mpeg"},
			"mp3":  {"audio/mpeg", "audio/mp3"},
			"mpga": {"audio/mpeg"},
			"ra":   {"audio/x-realaudio"},
			"ram":  {"audio/x-pn-realaudio"},
			"rm":   {"audio/x-pn-realaudio"},
			"rpm":  {"audio/x-pn-realaudio-plugin"},
			"snd":  {"audio/basic"},
			"tsi":  {"audio/TSP-audio"},
			"wav":  {"audio/x-wav", "audio/wave", "audio/wav"},
			"wma":  {"audio/x-ms-wma"},
		},
		GroupVideo: {
			"flv":   {"video/x-flv"},
			"fli":   {"video/x-fli"},
			"avi":   {"video/x-msvideo", "video/avi"},
			"qt":    {"video/quicktime"},
			"mov":   {"video/quicktime"},
			"movie": {"video/x-sgi-movie"},
			"mp2":   {"video/mpeg"},
			"mpa":   {"video/mpeg"},
			"mpv2":  {"video/mpeg"},
			"mpe":   {"video/mpeg"},
			"mpeg":  {"video/mpeg"},
			"mpg":   {"video/mpeg"},
			"mp4":   {"video/mp4"},
			"viv":   {"video/vnd.vivo"},
			"vivo":  {"video/vnd.vivo"},
			"webm":  {"video/webm"},
			"wmv":   {"video/x-ms-wmv"},
		},
		GroupApplication: {
			"js":  {"application/x-javascript", "application/javascript"},
			"xlc": {"application/vnd.ms-excel"},
			"xll": {"application/vnd.ms-excel"},
			"xlm": {"application/vnd.ms-excel"},
			"xls": {"application/vnd.ms-excel"},
			"xlw": {"application/vnd.ms-excel"},
			"doc": {"application/msword"},
			"dot": {"application/msword"},
			"pdf": {"application/pdf"},
			"psd": {"image/vnd.adobe.photoshop"},
			"ai":  {"application/postscript"},
			"eps": {"application/postscript"},
			"ps":  {"application/postscript"},
			"swf": {"application/x-shockwave-flash"},
		},
	}
}

// Default returns a registry over DefaultTable.
func Default() *Registry {
	return New(DefaultTable()).WithPreferred(map[string]string{
		"image/jpeg":      "jpg",
		"image/png":       "png",
		"text/plain":      "txt",
		"text/html":       "html",
		"audio/mpeg":      "mp3",
		"video/mpeg":      "mpg",
		"application/zip": "zip",
	})
}
