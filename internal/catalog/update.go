package catalog

import (
	"context"

	"updatr/internal/fileutil"
	"updatr/internal/logging"
	"updatr/internal/services"
)

// ApplyMetadata writes the fields of an OPF file onto item id.
func (c *Client) ApplyMetadata(ctx context.Context, id int64, opfPath string) error {
	logging.WithContext(ctx, c.logger).Info("applying fetched metadata", logging.String("opf", opfPath))
	res, err := c.run(ctx, "set_metadata", idArg(id), opfPath)
	if err != nil {
		return err
	}
	if !res.Success() {
		return failure("set_metadata", res)
	}
	return nil
}

// ApplyCover sets the cover of item id. A missing or empty cover file is not
// an error; applied reports whether the tool was invoked.
func (c *Client) ApplyCover(ctx context.Context, id int64, coverPath string) (bool, error) {
	if !fileutil.NonEmptyFile(coverPath) {
		logging.WithContext(ctx, c.logger).Debug("no cover downloaded", logging.String("cover", coverPath))
		return false, nil
	}
	logging.WithContext(ctx, c.logger).Info("applying fetched cover", logging.String("cover", coverPath))
	res, err := c.run(ctx, "set_metadata", idArg(id), "--field", "cover:"+coverPath)
	if err != nil {
		return false, err
	}
	if !res.Success() {
		return false, failure("cover set", res)
	}
	return true, nil
}

// Embed writes the catalog's metadata into the item's files of the given
// formats.
func (c *Client) Embed(ctx context.Context, id int64, formats []string) error {
	only := formatArg(formats)
	if only == "" {
		return services.Wrap(services.ErrConfiguration, "catalog", "embed_metadata", "no target formats", nil)
	}
	logging.WithContext(ctx, c.logger).Info("embedding metadata into files", logging.String("formats", only))
	res, err := c.run(ctx, "embed_metadata", "--only-formats", only, idArg(id))
	if err != nil {
		return err
	}
	if !res.Success() {
		return failure("embed_metadata", res)
	}
	return nil
}
