// Package postprocess turns a downloaded profile folder into its archived
// form.
//
// ExtractPostURLs writes a "<date>_<shortcode>_url.txt" file for every post
// metadata file. CompressMedia moves media files into one "media_<date>.zip"
// per day, merging with archives left by earlier runs. BuildReport, WriteXLSX
// and WriteCSV produce a table of the folder's posts.
package postprocess
